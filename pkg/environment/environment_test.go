package environment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/iapkit/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := map[string]environment.Environment{
		"production":  environment.Production,
		"PROD":        environment.Production,
		" stage ":     environment.Staging,
		"staging":     environment.Staging,
		"dev":         environment.Development,
		"":            environment.Development,
		"unknown-env": environment.Development,
	}
	for in, want := range cases {
		assert.Equal(t, want, environment.Parse(in), "input %q", in)
	}
	assert.Equal(t, "staging", environment.Parse("stage").String())
}
