package imageapi

import (
	"bytes"
	"testing"
)

func TestUsesTextureCache(t *testing.T) {
	tests := []struct {
		name string
		data ImageData
		want bool
	}{
		{"raw", NewImageData([]byte{1, 2, 3, 4}), true},
		{"raw shared", NewSharedImageData(NewSharedBuffer([]byte{1})), true},
		{"raw empty", NewImageData(nil), true},
		{"blob", NewBlobImageData([]byte{0}), true},
		{"texture 2d", NewExternalImageData(1, 0, ExternalTexture2DHandle), false},
		{"texture 2d array", NewExternalImageData(1, 0, ExternalTexture2DArrayHandle), false},
		{"texture rect", NewExternalImageData(1, 0, ExternalTextureRectHandle), false},
		{"texture external", NewExternalImageData(1, 0, ExternalTextureExternalHandle), false},
		{"buffer", NewExternalImageData(1, 0, ExternalBuffer), true},
		{"buffer plane 2", NewExternalImageData(99, 2, ExternalBuffer), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UsesTextureCache(tt.data); got != tt.want {
				t.Errorf("UsesTextureCache() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUsesTextureCache_UnknownExternalTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("unclassified external type did not panic")
		}
	}()
	UsesTextureCache(NewExternalImageData(1, 0, ExternalImageType(42)))
}

func TestIsBlob(t *testing.T) {
	if !IsBlob(NewBlobImageData(nil)) {
		t.Error("IsBlob(blob) = false")
	}
	if IsBlob(NewImageData([]byte{1})) {
		t.Error("IsBlob(raw) = true")
	}
	if IsBlob(NewExternalImageData(1, 0, ExternalBuffer)) {
		t.Error("IsBlob(external) = true")
	}
}

func TestNewImageData_RoundTrip(t *testing.T) {
	in := []byte{9, 8, 7, 6, 5}
	raw, ok := NewImageData(in).(RawImageData)
	if !ok {
		t.Fatal("NewImageData did not return RawImageData")
	}
	if !bytes.Equal(raw.Bytes(), []byte{9, 8, 7, 6, 5}) {
		t.Errorf("Bytes() = %v", raw.Bytes())
	}
}

func TestNewSharedImageData_SharesBuffer(t *testing.T) {
	buf := NewSharedBuffer([]byte{1, 2, 3})
	a := NewSharedImageData(buf).(RawImageData)
	b := NewSharedImageData(buf).(RawImageData)

	if a.Buffer != b.Buffer {
		t.Error("values built from one shared buffer do not share it")
	}
	if &a.Bytes()[0] != &b.Bytes()[0] {
		t.Error("underlying bytes were copied")
	}
	if a != b {
		t.Error("values built from one shared buffer are not equal")
	}
}

func TestSharedBuffer_Nil(t *testing.T) {
	var b *SharedBuffer
	if b.Bytes() != nil || b.Len() != 0 {
		t.Error("nil SharedBuffer must read as empty")
	}
}

func TestExternalImageType_String(t *testing.T) {
	for typ := ExternalTexture2DHandle; typ <= ExternalBuffer; typ++ {
		if !typ.IsValid() {
			t.Errorf("%v.IsValid() = false", typ)
		}
	}
	if ExternalImageType(5).IsValid() {
		t.Error("ExternalImageType(5).IsValid() = true")
	}
	if got := ExternalBuffer.String(); got != "ExternalBuffer" {
		t.Errorf("String() = %q", got)
	}
}
