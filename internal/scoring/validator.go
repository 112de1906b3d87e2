package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ahrav/go-clinaudit/internal/domain"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindStringList
	kindCompliance
)

func (k fieldKind) describe() string {
	switch k {
	case kindInt:
		return "integer (0-100)"
	case kindStringList:
		return "array de strings"
	case kindCompliance:
		return `string ("Sí" o "No")`
	default:
		return "string"
	}
}

type fieldSpec struct {
	name string
	kind fieldKind
}

// resultFields lists every rubric field the model must return, in prompt order.
var resultFields = []fieldSpec{
	{"cumple_guias", kindCompliance},
	{"score_calidad", kindInt},
	{"guias_aplicables", kindStringList},
	{"criterios_cumplidos", kindStringList},
	{"criterios_no_cumplidos", kindStringList},
	{"tratamiento_adecuado", kindString},
	{"tiempo_atencion", kindString},
	{"estudios_solicitados", kindString},
	{"medicacion_apropiada", kindString},
	{"hallazgos_criticos", kindStringList},
	{"recomendaciones", kindStringList},
	{"comentarios_adicionales", kindString},
}

// StripFences removes a leading ```json or ``` fence and a trailing ``` fence.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseResult turns raw model output into a validated AuditResult without
// identification fields. Every failure is a *llmerrors.ValidationError naming
// the offending field. Scores outside [0,100] are rejected, never clamped.
func ParseResult(content string) (*domain.AuditResult, error) {
	stripped := StripFences(content)
	if stripped == "" {
		return nil, &llmerrors.ValidationError{Message: "empty payload", Err: llmerrors.ErrJSONValidation}
	}

	dec := json.NewDecoder(strings.NewReader(stripped))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &llmerrors.ValidationError{
			Message: fmt.Sprintf("payload is not a JSON object: %v", err),
			Err:     fmt.Errorf("%w: %w", llmerrors.ErrJSONValidation, err),
		}
	}
	if raw == nil {
		return nil, &llmerrors.ValidationError{Message: "payload is null", Err: llmerrors.ErrJSONValidation}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &llmerrors.ValidationError{
			Message: "unexpected data after JSON object",
			Err:     llmerrors.ErrJSONValidation,
		}
	}

	normalized := make(map[string]any, len(resultFields))
	for _, f := range resultFields {
		v, ok := raw[f.name]
		if !ok {
			return nil, &llmerrors.ValidationError{Field: f.name, Message: "missing required field"}
		}
		nv, err := normalizeField(f, v)
		if err != nil {
			return nil, err
		}
		normalized[f.name] = nv
	}

	buf, err := json.Marshal(normalized)
	if err != nil {
		return nil, &llmerrors.ValidationError{Message: err.Error(), Err: err}
	}

	var result domain.AuditResult
	dec = json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&result); err != nil {
		return nil, &llmerrors.ValidationError{Message: err.Error(), Err: err}
	}
	if err := result.Validate(); err != nil {
		return nil, &llmerrors.ValidationError{Message: err.Error(), Err: err}
	}

	return &result, nil
}

func normalizeField(f fieldSpec, v any) (any, error) {
	invalid := func(msg string) error {
		return &llmerrors.ValidationError{Field: f.name, Value: v, Message: msg}
	}

	switch f.kind {
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, invalid("must be a string")
		}
		return s, nil

	case kindCompliance:
		switch c := v.(type) {
		case string:
			if strings.TrimSpace(c) == "" {
				return nil, invalid("must not be empty")
			}
			return c, nil
		case bool:
			if c {
				return domain.CompliantYes, nil
			}
			return domain.CompliantNo, nil
		default:
			return nil, invalid(`must be "Sí" or "No"`)
		}

	case kindInt:
		n, err := toInt(v)
		if err != nil {
			return nil, invalid(err.Error())
		}
		if n < domain.MinQualityScore || n > domain.MaxQualityScore {
			return nil, invalid(fmt.Sprintf("must be in [%d,%d], got %d", domain.MinQualityScore, domain.MaxQualityScore, n))
		}
		return int(n), nil

	case kindStringList:
		items, ok := v.([]any)
		if !ok {
			return nil, invalid("must be an array of strings")
		}
		out := make([]string, 0, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return nil, invalid(fmt.Sprintf("element %d must be a string", i))
			}
			out = append(out, s)
		}
		return out, nil
	}

	return nil, invalid("unknown field kind")
}

var errNotInteger = errors.New("must be an integer")

// toInt accepts JSON integers, integral floats and numeric strings.
func toInt(v any) (int64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, errNotInteger
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errNotInteger
		}
		f = parsed
	default:
		return 0, errNotInteger
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errNotInteger
	}
	return int64(f), nil
}
