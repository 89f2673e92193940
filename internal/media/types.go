package media

import "io"

// StoreInput carries a downloaded media payload to persist.
type StoreInput struct {
	Data     []byte
	Filename string
	MimeType string
}

// Stored describes a persisted media object.
type Stored struct {
	Filename string
	URL      string
	// MediaType is the MIME main type (image, audio, video, ...).
	MediaType string
}

// Opened pairs a media reader with its content type for serving.
type Opened struct {
	Reader      io.ReadCloser
	ContentType string
}
