package report

import (
	"encoding/json"
	"strings"

	"github.com/Nell373/linebot-ai/internal/entity"

	"gopkg.in/yaml.v3"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) FormatSummary(s entity.Summary) (string, error) {
	return marshalJSON(viewSummary(s))
}

func (f *JSONFormatter) FormatTransactions(txs []entity.Transaction) (string, error) {
	return marshalJSON(viewTransactions(txs))
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) FormatSummary(s entity.Summary) (string, error) {
	return marshalYAML(viewSummary(s))
}

func (f *YAMLFormatter) FormatTransactions(txs []entity.Transaction) (string, error) {
	return marshalYAML(viewTransactions(txs))
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
