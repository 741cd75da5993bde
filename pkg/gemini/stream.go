package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"mime"
	"net/http"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ngoclaw/gemini-go/pkg/safego"
)

const eventStreamMediaType = "text/event-stream"

// StreamGenerateContent opens a streamGenerateContent?alt=sse call and
// yields one response per event.
//
// The sequence ends without an error at end of stream. A connection
// failure, an unexpected status or an unexpected content type is yielded as
// a single error item and ends the sequence. An event whose data is not a
// valid response yields a Decode error and the sequence continues.
//
// The sequence is not restartable: ranging over it a second time yields a
// single error.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, req *GenerateContentRequest) iter.Seq2[*GenerateContentResponse, error] {
	var consumed atomic.Bool
	return func(yield func(*GenerateContentResponse, error) bool) {
		if consumed.Swap(true) {
			yield(nil, newTransportError("stream already consumed", nil))
			return
		}

		path := modelPath(model, "streamGenerateContent")
		resp, err := c.send(ctx, http.MethodPost, path, url.Values{"alt": {"sse"}}, req, eventStreamMediaType)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(resp.Body)
			yield(nil, newStreamStatusError(resp.StatusCode, string(body)))
			return
		}
		contentType := resp.Header.Get("Content-Type")
		if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType != eventStreamMediaType {
			body, _ := io.ReadAll(resp.Body)
			yield(nil, newStreamContentTypeError(resp.StatusCode, contentType, string(body)))
			return
		}

		// Force-close the body on cancellation so a stalled read returns.
		streamDone := make(chan struct{})
		defer close(streamDone)
		safego.Go(c.logger, "gemini-stream-cancel", func() {
			select {
			case <-ctx.Done():
				c.logger.Debug("Context cancelled, closing Gemini SSE stream", zap.Error(ctx.Err()))
				resp.Body.Close()
			case <-streamDone:
			}
		})

		reader := newSSEReader(resp.Body)
		events := 0
		for {
			ev, err := reader.Next()
			if errors.Is(err, io.EOF) {
				c.logger.Debug("Gemini SSE stream ended", zap.Int("events", events))
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(nil, newTransportError("read stream", err))
				return
			}
			if ev.Data == "" {
				continue
			}
			events++

			var chunk GenerateContentResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				if !yield(nil, newDecodeError("decode stream event", err)) {
					return
				}
				continue
			}
			if !yield(&chunk, nil) {
				return
			}
		}
	}
}

// CollectStream drains a stream into a single response: text parts of the
// first candidate are merged, other parts are kept in order, and the last
// non-empty finish reason, usage and model version win. The first error
// stops collection.
func CollectStream(stream iter.Seq2[*GenerateContentResponse, error]) (*GenerateContentResponse, error) {
	out := &GenerateContentResponse{}
	var cand *Candidate
	for chunk, err := range stream {
		if err != nil {
			return nil, err
		}
		if chunk.UsageMetadata != nil {
			out.UsageMetadata = chunk.UsageMetadata
		}
		if chunk.ModelVersion != "" {
			out.ModelVersion = chunk.ModelVersion
		}
		if chunk.ResponseID != "" {
			out.ResponseID = chunk.ResponseID
		}
		if chunk.PromptFeedback != nil {
			out.PromptFeedback = chunk.PromptFeedback
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		next := chunk.Candidates[0]
		if cand == nil {
			cand = &Candidate{Content: Content{Role: next.Content.Role}}
		}
		for _, p := range next.Content.Parts {
			cand.Content.Parts = appendMerged(cand.Content.Parts, p)
		}
		if next.FinishReason != "" {
			cand.FinishReason = next.FinishReason
		}
		if next.SafetyRatings != nil {
			cand.SafetyRatings = next.SafetyRatings
		}
		if next.CitationMetadata != nil {
			cand.CitationMetadata = next.CitationMetadata
		}
		if next.GroundingMetadata != nil {
			cand.GroundingMetadata = next.GroundingMetadata
		}
	}
	if cand != nil {
		out.Candidates = []Candidate{*cand}
	}
	return out, nil
}

// appendMerged joins consecutive text parts with the same thought flag.
func appendMerged(parts []Part, p Part) []Part {
	if t, ok := p.Data.(Text); ok && len(parts) > 0 {
		last := &parts[len(parts)-1]
		if prev, ok := last.Data.(Text); ok && last.Thought == p.Thought {
			last.Data = prev + t
			return parts
		}
	}
	return append(parts, p)
}
