package video

import (
	"image"
	"image/color"

	"robot-gateway/internal/types"
)

// FrameFromImage переводит изображение в BGR кадр
func FrameFromImage(img image.Image) types.DecodedFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*3)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				si, di := x*4, (y*w+x)*3
				pix[di] = row[si+2]
				pix[di+1] = row[si+1]
				pix[di+2] = row[si]
			}
		}
		return types.DecodedFrame{Width: w, Height: h, Pix: pix}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			di := (y*w + x) * 3
			pix[di] = c.B
			pix[di+1] = c.G
			pix[di+2] = c.R
		}
	}
	return types.DecodedFrame{Width: w, Height: h, Pix: pix}
}

// ImageFromFrame переводит BGR кадр в RGBA изображение
func ImageFromFrame(f types.DecodedFrame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i+2 < len(f.Pix) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i+2]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i]
		img.Pix[j+3] = 0xff
	}
	return img
}
