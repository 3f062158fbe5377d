// ABOUTME: Chunk represents one structurally delimited section of a document
// ABOUTME: ChunkResult carries the per-chunk outcome, tagged success or fallback
package models

// Chunk is a contiguous section of a document, introduced by an optional header line
type Chunk struct {
	Index      int    `json:"index"`
	HeaderText string `json:"header_text,omitempty"`
	Body       string `json:"body"`
}

// ChunkResult is the outcome of anonymizing a single chunk.
// When Succeeded is false, OutputText is the original chunk body.
type ChunkResult struct {
	Index       int    `json:"index"`
	OutputText  string `json:"output_text"`
	Succeeded   bool   `json:"succeeded"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// SucceededResult builds a result for text returned by the model
func SucceededResult(index int, output string) ChunkResult {
	return ChunkResult{
		Index:      index,
		OutputText: output,
		Succeeded:  true,
	}
}

// FallbackResult builds a failed result that passes the chunk body through unchanged
func FallbackResult(chunk Chunk, err error) ChunkResult {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return ChunkResult{
		Index:       chunk.Index,
		OutputText:  chunk.Body,
		Succeeded:   false,
		ErrorDetail: detail,
	}
}
