package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPolicy_Default(t *testing.T) {
	p, err := NewUploadPolicy("", 1024)
	require.NoError(t, err)
	assert.Equal(t, "size <= 1024", p.Expression())

	assert.NoError(t, p.Check(UploadInfo{Size: 1024}))
	assert.ErrorIs(t, p.Check(UploadInfo{Size: 1025}), ErrUploadRejected)
}

func TestUploadPolicy_Custom(t *testing.T) {
	p, err := NewUploadPolicy(`kind == "video" ? content_type.startsWith("video/") : size < 10`, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		info UploadInfo
		ok   bool
	}{
		{"video mime", UploadInfo{Kind: "video", ContentType: "video/mp4", Size: 1 << 30}, true},
		{"video wrong mime", UploadInfo{Kind: "video", ContentType: "text/plain"}, false},
		{"small image", UploadInfo{Kind: "image", Size: 9}, true},
		{"large image", UploadInfo{Kind: "image", Size: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.info)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUploadRejected)
			}
		})
	}
}

func TestUploadPolicy_CreatorAndFilename(t *testing.T) {
	p, err := NewUploadPolicy(`creator != "banned" && !filename.endsWith(".exe")`, 0)
	require.NoError(t, err)

	assert.NoError(t, p.Check(UploadInfo{Creator: "alice", FileName: "cat.mp4"}))
	assert.Error(t, p.Check(UploadInfo{Creator: "banned", FileName: "cat.mp4"}))
	assert.Error(t, p.Check(UploadInfo{Creator: "alice", FileName: "cat.exe"}))
}

func TestUploadPolicy_InvalidExpressions(t *testing.T) {
	_, err := NewUploadPolicy("size +", 0)
	assert.ErrorContains(t, err, "CEL compilation error")

	_, err = NewUploadPolicy("size + 1", 0)
	assert.ErrorContains(t, err, "must return bool")

	_, err = NewUploadPolicy("unknown_var > 1", 0)
	assert.Error(t, err)
}
