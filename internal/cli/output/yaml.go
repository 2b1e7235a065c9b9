package output

import (
	"io"

	"github.com/bytedance/sonic"
	"go.yaml.in/yaml/v3"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format formats data as YAML. Data goes through JSON first so struct
// fields keep their json names.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	raw, err := sonic.ConfigStd.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := sonic.ConfigStd.Unmarshal(raw, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
