package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone"`
}

type currentTimeResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

type addNumbersArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type addNumbersResult struct {
	Sum float64 `json:"sum"`
}

// DemoRegistry returns the built-in functions offered by "generate":
// get_current_time and add_numbers. now is injectable for tests.
func DemoRegistry(now func() time.Time) *gemini.Registry {
	if now == nil {
		now = time.Now
	}
	reg := gemini.NewRegistry()

	_ = reg.Register(gemini.FunctionDeclaration{
		Name:        "get_current_time",
		Description: "Returns the current time, optionally in an IANA time zone.",
		Parameters: gemini.NewObjectParameters(map[string]gemini.ParameterProperty{
			"timezone": gemini.StringProperty{Description: "IANA zone name such as Europe/Paris. Defaults to UTC."},
		}),
	}, gemini.TypedHandler(func(_ context.Context, args currentTimeArgs) (currentTimeResult, error) {
		name := args.Timezone
		if name == "" {
			name = "UTC"
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return currentTimeResult{}, fmt.Errorf("unknown time zone %q", name)
		}
		return currentTimeResult{Time: now().In(loc).Format(time.RFC3339), Timezone: name}, nil
	}))

	_ = reg.Register(gemini.FunctionDeclaration{
		Name:        "add_numbers",
		Description: "Adds two numbers.",
		Parameters: gemini.NewObjectParameters(map[string]gemini.ParameterProperty{
			"a": gemini.IntegerProperty{Description: "First addend."},
			"b": gemini.IntegerProperty{Description: "Second addend."},
		}, "a", "b"),
	}, gemini.TypedHandler(func(_ context.Context, args addNumbersArgs) (addNumbersResult, error) {
		return addNumbersResult{Sum: args.A + args.B}, nil
	}))

	return reg
}
