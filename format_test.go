package imageapi

import (
	"testing"

	"github.com/gogpu/gputypes"
)

var allFormats = []ImageFormat{FormatR8, FormatBGRA8, FormatRGBAF32, FormatRG8}

func TestImageFormat_BytesPerPixel(t *testing.T) {
	tests := []struct {
		format ImageFormat
		want   uint32
	}{
		{FormatR8, 1},
		{FormatBGRA8, 4},
		{FormatRGBAF32, 16},
		{FormatRG8, 2},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerPixel(); got != tt.want {
				t.Errorf("BytesPerPixel() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestImageFormat_BytesPerPixelNeverZero(t *testing.T) {
	allowed := map[uint32]bool{1: true, 2: true, 4: true, 16: true}
	for _, f := range allFormats {
		if !f.IsValid() {
			t.Errorf("%v.IsValid() = false", f)
		}
		if bpp := f.BytesPerPixel(); !allowed[bpp] {
			t.Errorf("%v.BytesPerPixel() = %d, not in {1,2,4,16}", f, bpp)
		}
	}
}

func TestImageFormat_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("BytesPerPixel on unknown format did not panic")
		}
	}()
	ImageFormat(2).BytesPerPixel()
}

func TestImageFormat_WireValues(t *testing.T) {
	if FormatR8 != 1 || FormatBGRA8 != 3 || FormatRGBAF32 != 4 || FormatRG8 != 5 {
		t.Error("image format discriminants changed")
	}
	if ImageFormat(0).IsValid() || ImageFormat(2).IsValid() {
		t.Error("gaps in the enumeration must not be valid")
	}
}

func TestImageFormat_TextureFormat(t *testing.T) {
	tests := map[ImageFormat]gputypes.TextureFormat{
		FormatR8:      gputypes.TextureFormatR8Unorm,
		FormatBGRA8:   gputypes.TextureFormatBGRA8Unorm,
		FormatRGBAF32: gputypes.TextureFormatRGBA32Float,
		FormatRG8:     gputypes.TextureFormatRG8Unorm,
	}
	for f, want := range tests {
		if got := f.TextureFormat(); got != want {
			t.Errorf("%v.TextureFormat() = %v, want %v", f, got, want)
		}
	}
}

func TestImageDescriptor_ComputeStride(t *testing.T) {
	for _, f := range allFormats {
		for _, w := range []uint32{0, 1, 7, 64, 1000} {
			d := NewImageDescriptor(w, 3, f, false)
			if got, want := d.ComputeStride(), w*f.BytesPerPixel(); got != want {
				t.Errorf("%v w=%d: ComputeStride() = %d, want %d", f, w, got, want)
			}
		}
	}
}

func TestImageDescriptor_ExplicitStride(t *testing.T) {
	d := NewImageDescriptor(10, 4, FormatBGRA8, true)
	d.Stride = 64
	if got := d.ComputeStride(); got != 64 {
		t.Errorf("ComputeStride() = %d, want 64", got)
	}

	d.Offset = 16
	if got := d.ComputeTotalSize(); got != 16+64*4 {
		t.Errorf("ComputeTotalSize() = %d, want %d", got, 16+64*4)
	}
}

func TestImageDescriptor_Defaults(t *testing.T) {
	d := NewImageDescriptor(8, 2, FormatRG8, true)
	if d.Stride != 0 || d.Offset != 0 {
		t.Errorf("NewImageDescriptor set stride=%d offset=%d, want 0, 0", d.Stride, d.Offset)
	}
	if !d.IsOpaque {
		t.Error("IsOpaque not kept")
	}
	ext := d.Extent()
	if ext.Width != 8 || ext.Height != 2 || ext.DepthOrArrayLayers != 1 {
		t.Errorf("Extent() = %+v", ext)
	}
}
