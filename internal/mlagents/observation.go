package mlagents

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// decodeCompressed turns concatenated PNGs into a (height, width, channels)
// array of values in [0, 1]. A non-empty mapping assigns each decoded
// channel to an output channel (-1 drops it); channels sharing an output
// are averaged.
func decodeCompressed(data []byte, shape []int, mapping []int32) ([]float32, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: compressed observation needs a (height, width, channels) shape, got %v", ErrObservation, shape)
	}
	height, width, channels := shape[0], shape[1], shape[2]

	images, err := decodePNGs(data)
	if err != nil {
		return nil, err
	}
	var planes [][]float32
	for _, img := range images {
		for _, plane := range img {
			if len(plane) != height*width {
				return nil, fmt.Errorf("%w: image has %d pixels, expected %dx%d", ErrObservation, len(plane), height, width)
			}
		}
		planes = append(planes, img...)
	}

	switch {
	case len(mapping) > 0:
		if len(mapping) != len(planes) {
			return nil, fmt.Errorf("%w: channel mapping has %d entries for %d decoded channels", ErrObservation, len(mapping), len(planes))
		}
		planes = remapChannels(planes, mapping, height*width)
	case channels == 1:
		planes = [][]float32{meanPlane(images[0], height*width)}
	case len(planes) > channels:
		planes = planes[:channels]
	}
	if len(planes) != channels {
		return nil, fmt.Errorf("%w: decoded %d channels, expected %d", ErrObservation, len(planes), channels)
	}

	out := make([]float32, height*width*channels)
	for c, plane := range planes {
		for p, v := range plane {
			out[p*channels+c] = v
		}
	}
	return out, nil
}

// decodePNGs returns the channel planes of every image in data.
func decodePNGs(data []byte) ([][][]float32, error) {
	var images [][][]float32
	for start := 0; start < len(data); {
		if !bytes.HasPrefix(data[start:], pngSignature) {
			return nil, fmt.Errorf("%w: compressed data is not PNG", ErrObservation)
		}
		end := len(data)
		if next := bytes.Index(data[start+len(pngSignature):], pngSignature); next >= 0 {
			end = start + len(pngSignature) + next
		}
		img, err := png.Decode(bytes.NewReader(data[start:end]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrObservation, err)
		}
		images = append(images, imagePlanes(img))
		start = end
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: empty compressed observation", ErrObservation)
	}
	return images, nil
}

func imagePlanes(img image.Image) [][]float32 {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()

	if _, gray := img.(*image.Gray); gray {
		plane := make([]float32, 0, n)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				plane = append(plane, float32(g.Y)/255)
			}
		}
		return [][]float32{plane}
	}

	r := make([]float32, 0, n)
	g := make([]float32, 0, n)
	b := make([]float32, 0, n)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r = append(r, float32(cr>>8)/255)
			g = append(g, float32(cg>>8)/255)
			b = append(b, float32(cb>>8)/255)
		}
	}
	return [][]float32{r, g, b}
}

func meanPlane(planes [][]float32, size int) []float32 {
	out := make([]float32, size)
	if len(planes) == 0 {
		return out
	}
	for _, plane := range planes {
		for i, v := range plane {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float32(len(planes))
	}
	return out
}

func remapChannels(planes [][]float32, mapping []int32, size int) [][]float32 {
	maxTarget := int32(-1)
	for _, m := range mapping {
		if m > maxTarget {
			maxTarget = m
		}
	}
	groups := make([][][]float32, maxTarget+1)
	for i, m := range mapping {
		if m > -1 {
			groups[m] = append(groups[m], planes[i])
		}
	}
	out := make([][]float32, len(groups))
	for i, group := range groups {
		out[i] = meanPlane(group, size)
	}
	return out
}
