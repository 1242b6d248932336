// Package chunker splits raw source text into overlapping, sentence-aware
// segments suitable for embedding and retrieval.
package chunker

import "strings"

// Default chunking parameters, matching the embedding pipeline defaults.
const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 200
)

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Split cuts text into chunks of roughly targetSize characters, with each
// chunk overlapping the previous one by overlap characters so retrieval
// stays coherent across a cut sentence.
//
// Text that fits in a single chunk is returned as-is (trimmed). Otherwise
// the cut point is snapped backward to the nearest sentence-terminal
// character, searching at most targetSize/2 characters before giving up
// and cutting at the raw window boundary. Chunks are trimmed and empty
// chunks dropped. Split keeps no state between calls.
func Split(text string, targetSize, overlap int) []string {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = targetSize / 5
	}

	runes := []rune(text)
	if len(runes) <= targetSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + targetSize

		if end < len(runes) {
			// Snap backward to a sentence boundary, but never further
			// than half a window.
			limit := start + targetSize/2
			for i := end; i > limit; i-- {
				if isSentenceEnd(runes[i-1]) {
					end = i
					break
				}
			}
		} else {
			end = len(runes)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			// Window failed to advance; bail rather than loop forever.
			break
		}
		start = next
	}

	return chunks
}
