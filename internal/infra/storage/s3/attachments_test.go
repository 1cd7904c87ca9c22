package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttachmentsValidation(t *testing.T) {
	_, err := NewAttachments(" ", false, "k", "s", "bucket", "", nil)
	assert.Error(t, err)
	_, err = NewAttachments("http://localhost:9000", false, "k", "s", " ", "", nil)
	assert.Error(t, err)
}

func TestObjectURLAndLimits(t *testing.T) {
	a, err := NewAttachments("http://localhost:9000", false, "k", "s", "chat", "https://cdn.example.com/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/chat/conversations/c1/a.pdf", a.objectURL("/conversations/c1/a.pdf"))

	_, err = a.Put(context.Background(), "k", "", nil)
	assert.ErrorIs(t, err, ErrEmptyAttachment)
	a.MaxSize = 3
	_, err = a.Put(context.Background(), "k", "", []byte("four"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://localhost:9000", "localhost:9000"},
		{"https://s3.example.com", "s3.example.com"},
		{"minio:9000", "minio:9000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEndpoint(tt.in), tt.in)
	}
}
