package formatter

import (
	"io"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-chat-recap/internal/core/model"
)

// JSONFormatter writes the success envelope as indented JSON.
type JSONFormatter struct {
	w io.Writer
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{w: w}
}

func (f *JSONFormatter) Format(source string, analysis *model.Analysis) error {
	data, err := sonic.ConfigStd.MarshalIndent(BuildResponse(analysis), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.w.Write(data)
	return err
}

// MarshalResponse encodes the success envelope compactly for HTTP bodies.
func MarshalResponse(analysis *model.Analysis) ([]byte, error) {
	return sonic.ConfigStd.Marshal(BuildResponse(analysis))
}

// MarshalError encodes the failure envelope and returns its HTTP status.
func MarshalError(err error) ([]byte, int, error) {
	resp, status := BuildErrorResponse(err)
	data, merr := sonic.ConfigStd.Marshal(resp)
	return data, status, merr
}
