package parser

// IsBinary reports whether data should be extracted as a binary
// attachment rather than inlined as JSON.
func IsBinary(data any) bool {
	_, ok := data.([]byte)
	return ok
}

// HasBinary recursively reports whether data contains any []byte value.
// Only []any and map[string]any are searched; other container types
// (typed slices, structs) are not looked into.
func HasBinary(data any) bool {
	switch v := data.(type) {
	case nil:
		return false
	case []any:
		for _, item := range v {
			if HasBinary(item) {
				return true
			}
		}
		return false
	case map[string]any:
		for _, item := range v {
			if HasBinary(item) {
				return true
			}
		}
		return false
	default:
		return IsBinary(v)
	}
}

// Deconstruct replaces every binary value reachable from data with a
// Placeholder and returns the placeholder-substituted tree plus the
// extracted attachments in encounter order.
func Deconstruct(data any) (any, [][]byte) {
	var attachments [][]byte
	result := deconstruct(data, &attachments)
	return result, attachments
}

func deconstruct(data any, attachments *[][]byte) any {
	if data == nil {
		return nil
	}
	if b, ok := data.([]byte); ok {
		placeholder := Placeholder{Placeholder: true, Num: len(*attachments)}
		*attachments = append(*attachments, b)
		return placeholder
	}
	switch v := data.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deconstruct(item, attachments)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deconstruct(item, attachments)
		}
		return out
	default:
		return data
	}
}

// Reconstruct replaces every Placeholder reachable from data (decoded from
// JSON, so placeholders arrive as map[string]any, not the Placeholder
// struct) with the corresponding attachment.
func Reconstruct(data any, attachments [][]byte) (any, error) {
	return reconstruct(data, attachments)
}

func reconstruct(data any, attachments [][]byte) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		if isPlaceholder, _ := v["_placeholder"].(bool); isPlaceholder {
			num, ok := v["num"].(float64)
			if !ok || int(num) < 0 || int(num) >= len(attachments) {
				return nil, ErrIllegalAttachments
			}
			return attachments[int(num)], nil
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			rebuilt, err := reconstruct(item, attachments)
			if err != nil {
				return nil, err
			}
			out[k] = rebuilt
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rebuilt, err := reconstruct(item, attachments)
			if err != nil {
				return nil, err
			}
			out[i] = rebuilt
		}
		return out, nil
	default:
		return data, nil
	}
}
