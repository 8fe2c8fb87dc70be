package domain

import "io"

// SubmitInput carries an uploaded image and its optional metadata.
type SubmitInput struct {
	UserID      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Location    *GeoPoint
	Notes       string
	Tags        []string
	IsPublic    bool
}

// ImageInput is what classifiers receive. Data is always populated; URL is set when the
// image is publicly reachable.
type ImageInput struct {
	URL         string
	ContentType string
	Data        []byte
}

type ChatInput struct {
	UserID     string
	ChatID     string
	AnalysisID string
	Message    string
	Type       MessageType
}
