package passthrough

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/streaming"
)

// newUsageSniffer builds the line-reassembling streaming.Sniffer for kind,
// publishing the terminal usage it finds (or a zero Usage, if none) onto
// result when the stream closes. The sniffer is allowed to fail silently
// (spec §4.F point 4): a decode error just means no usage for this
// request, logged, never propagated.
func newUsageSniffer(kind Kind, result chan<- canonical.Usage) streaming.Sniffer {
	switch kind {
	case KindAnthropic:
		return newAnthropicSniffer(result)
	case KindOpenAIResponses:
		return newResponsesSniffer(result)
	default:
		return newChatSniffer(result)
	}
}

// --- Anthropic: message_start gives input usage, message_delta/stop gives output ---

type anthropicSniffer struct {
	line   *streaming.LineSniffer
	usage  canonical.Usage
	result chan<- canonical.Usage
}

func newAnthropicSniffer(result chan<- canonical.Usage) *anthropicSniffer {
	s := &anthropicSniffer{result: result}
	s.line = streaming.NewLineSniffer(s.onLine, s.onDone)
	return s
}

func (s *anthropicSniffer) Feed(chunk []byte) { s.line.Feed(chunk) }
func (s *anthropicSniffer) Close()            { s.line.Close() }

func (s *anthropicSniffer) onLine(line []byte) {
	data, ok := dataPayload(line)
	if !ok {
		return
	}

	var event struct {
		Type    string `json:"type"`
		Message struct {
			Usage struct {
				InputTokens              int `json:"input_tokens"`
				CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
				CacheReadInputTokens     int `json:"cache_read_input_tokens"`
			} `json:"usage"`
		} `json:"message"`
		Usage struct {
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[passthrough] anthropic usage sniff: decode failed: %v", err)
		return
	}

	switch event.Type {
	case "message_start":
		s.usage.InputTokens = event.Message.Usage.InputTokens
		s.usage.CacheWriteTokens = event.Message.Usage.CacheCreationInputTokens
		s.usage.CachedTokens = event.Message.Usage.CacheCreationInputTokens + event.Message.Usage.CacheReadInputTokens
	case "message_delta", "message_stop":
		if event.Usage.OutputTokens > 0 {
			s.usage.OutputTokens = event.Usage.OutputTokens
		}
	}
}

func (s *anthropicSniffer) onDone() {
	s.usage.Normalize()
	s.result <- s.usage
}

// --- OpenAI responses: locate response.completed, brace-balance its JSON object ---

type responsesSniffer struct {
	buf    []byte
	result chan<- canonical.Usage
}

func newResponsesSniffer(result chan<- canonical.Usage) *responsesSniffer {
	return &responsesSniffer{result: result}
}

func (s *responsesSniffer) Feed(chunk []byte) { s.buf = append(s.buf, chunk...) }

func (s *responsesSniffer) Close() {
	var usage canonical.Usage
	if obj, ok := braceBalancedObjectAfter(s.buf, "response.completed"); ok {
		var parsed struct {
			Response struct {
				Usage struct {
					InputTokens        int `json:"input_tokens"`
					OutputTokens       int `json:"output_tokens"`
					InputTokensDetails struct {
						CachedTokens int `json:"cached_tokens"`
					} `json:"input_tokens_details"`
				} `json:"usage"`
			} `json:"response"`
		}
		if err := json.Unmarshal(obj, &parsed); err != nil {
			log.Printf("[passthrough] openai responses usage sniff: decode failed: %v", err)
		} else {
			usage.InputTokens = parsed.Response.Usage.InputTokens
			usage.OutputTokens = parsed.Response.Usage.OutputTokens
			usage.CachedTokens = parsed.Response.Usage.InputTokensDetails.CachedTokens
		}
	}
	usage.Normalize()
	s.result <- usage
}

// braceBalancedObjectAfter finds the first "data: {" JSON object whose raw
// text contains marker, then returns the object delimited by brace
// balance (spec §4.F: "locate the response.completed event, brace-balance
// its JSON object"), since a streamed SSE line is itself one JSON value
// and a naive first-'}' scan would truncate nested objects.
func braceBalancedObjectAfter(buf []byte, marker string) ([]byte, bool) {
	idx := bytes.Index(buf, []byte(marker))
	if idx < 0 {
		return nil, false
	}

	start := bytes.LastIndexByte(buf[:idx], '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buf[start : i+1], true
			}
		}
	}
	return nil, false
}

// --- OpenAI chat completions: parse data: lines until one carries usage ---

type chatSniffer struct {
	line   *streaming.LineSniffer
	found  bool
	result chan<- canonical.Usage
}

func newChatSniffer(result chan<- canonical.Usage) *chatSniffer {
	s := &chatSniffer{result: result}
	s.line = streaming.NewLineSniffer(s.onLine, s.onDone)
	return s
}

func (s *chatSniffer) Feed(chunk []byte) { s.line.Feed(chunk) }
func (s *chatSniffer) Close()            { s.line.Close() }

func (s *chatSniffer) onLine(line []byte) {
	if s.found {
		return
	}
	data, ok := dataPayload(line)
	if !ok || string(data) == "[DONE]" {
		return
	}

	var event struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("[passthrough] openai chat usage sniff: decode failed: %v", err)
		return
	}
	if event.Usage == nil {
		return
	}

	s.found = true
	usage := canonical.Usage{PromptTokens: event.Usage.PromptTokens, CompletionTokens: event.Usage.CompletionTokens}
	usage.Normalize()
	s.result <- usage
}

func (s *chatSniffer) onDone() {
	if !s.found {
		var usage canonical.Usage
		usage.Normalize()
		s.result <- usage
	}
}

func dataPayload(line []byte) ([]byte, bool) {
	text := strings.TrimSpace(string(line))
	if !strings.HasPrefix(text, "data:") {
		return nil, false
	}
	return []byte(strings.TrimSpace(strings.TrimPrefix(text, "data:"))), true
}
