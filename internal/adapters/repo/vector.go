package repo

import (
	"fmt"
	"strconv"
	"strings"
)

// encodeVector сериализует вектор в текстовый формат pgvector: [v1,v2,...].
func encodeVector(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// decodeVector разбирает текстовое представление pgvector.
func decodeVector(raw string) ([]float32, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("неожиданный формат вектора: %q", raw)
	}
	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return []float32{}, nil
	}
	parts := strings.Split(inner, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("разбор компоненты вектора: %w", err)
		}
		vector = append(vector, float32(v))
	}
	return vector, nil
}
