package model

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	System string
	User   string
	// JSON asks the model for a JSON object response.
	JSON        bool
	Temperature float64
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type TranscriptionRequest struct {
	Audio    []byte
	Filename string
	MimeType string
	Language string
}

type Transcript struct {
	Text            string
	Language        string
	DurationSeconds float64
}

// Asset is a downloaded media object.
type Asset struct {
	Data        []byte
	ContentType string
}

// NormalizedMedia is audio ready for speech-to-text.
type NormalizedMedia struct {
	Data       []byte
	MimeType   string
	Filename   string
	Transcoded bool
}
