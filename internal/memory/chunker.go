// Package memory implements the vector memory store: chunking, embedding,
// persistence, and similarity search over embedded text chunks.
package memory

// SplitText splits text into chunks of at most size runes with the given
// rune overlap between consecutive chunks. Text that fits in one chunk is
// returned as-is. Rune-based slicing keeps multibyte characters intact.
func SplitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
