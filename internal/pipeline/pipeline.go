package pipeline

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"text/template"

	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/generation"
)

// Built-in job types.
const (
	JobTypeParse          = "parse"
	JobTypeDetectTriggers = "detect_triggers"
	JobTypeRecap          = "recap"
)

//go:embed definitions/*.json definitions/*.tmpl
var definitionsFS embed.FS

// Spec describes a job type before compilation.
type Spec struct {
	JobType      string
	Stage        domain.Stage
	InputSchema  []byte
	OutputSchema []byte
	Prompt       string
}

// Definition is a compiled job type.
type Definition struct {
	JobType string
	Stage   domain.Stage

	input  *Schema
	output *Schema
	prompt *template.Template
}

// promptFuncs are available inside prompt templates.
var promptFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

// Compile validates and compiles a Spec.
func Compile(spec Spec) (*Definition, error) {
	if spec.JobType == "" {
		return nil, fmt.Errorf("job type cannot be empty")
	}
	if !spec.Stage.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStage, spec.Stage)
	}

	input, err := CompileSchema(spec.JobType+".input.json", spec.InputSchema)
	if err != nil {
		return nil, err
	}
	output, err := CompileSchema(spec.JobType+".output.json", spec.OutputSchema)
	if err != nil {
		return nil, err
	}
	prompt, err := template.New(spec.JobType).Funcs(promptFuncs).Parse(spec.Prompt)
	if err != nil {
		return nil, fmt.Errorf("parse prompt for %s: %w", spec.JobType, err)
	}

	return &Definition{
		JobType: spec.JobType,
		Stage:   spec.Stage,
		input:   input,
		output:  output,
		prompt:  prompt,
	}, nil
}

// ValidateInput checks a submitted input against the input schema.
// Failures are *domain.ValidationError values wrapping domain.ErrValidation.
func (d *Definition) ValidateInput(input json.RawMessage) error {
	if len(bytes.TrimSpace(input)) == 0 {
		return domain.NewValidationError("input", "is required", domain.ErrValidation)
	}
	if err := d.input.Validate(input); err != nil {
		return domain.NewValidationError("input", "does not match the "+d.JobType+" schema: "+err.Error(), domain.ErrValidation)
	}
	return nil
}

// NormalizeOutput compacts generator output and checks it against the
// output schema. Failures wrap generation.ErrInvalidResponse.
func (d *Definition) NormalizeOutput(payload json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("%w: output is not valid JSON: %v", generation.ErrInvalidResponse, err)
	}
	if err := d.output.Validate(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: output does not match the %s schema: %v",
			generation.ErrInvalidResponse, d.JobType, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// OutputSchema returns the output schema document.
func (d *Definition) OutputSchema() json.RawMessage {
	return d.output.Raw()
}

// RenderPrompt executes the prompt template with the decoded input
// available as .Input.
func (d *Definition) RenderPrompt(input json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode input: %w", err)
	}

	var buf bytes.Buffer
	if err := d.prompt.Execute(&buf, struct{ Input any }{Input: v}); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", d.JobType, err)
	}
	return buf.String(), nil
}

// Request builds the generation request for a validated input.
func (d *Definition) Request(input json.RawMessage) (generation.Request, error) {
	prompt, err := d.RenderPrompt(input)
	if err != nil {
		return generation.Request{}, err
	}
	return generation.Request{
		JobType:        d.JobType,
		Prompt:         prompt,
		ResponseSchema: d.OutputSchema(),
	}, nil
}

// Registry holds the known job types.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry compiles specs into a registry. Duplicate job types are an error.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(specs))}
	for _, spec := range specs {
		if _, dup := r.defs[spec.JobType]; dup {
			return nil, fmt.Errorf("duplicate job type %q", spec.JobType)
		}
		def, err := Compile(spec)
		if err != nil {
			return nil, err
		}
		r.defs[spec.JobType] = def
	}
	return r, nil
}

// Lookup returns the definition for jobType or domain.ErrUnknownJobType.
func (r *Registry) Lookup(jobType string) (*Definition, error) {
	def, ok := r.defs[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
	return def, nil
}

// JobTypes lists the registered job types in sorted order.
func (r *Registry) JobTypes() []string {
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Default returns the registry of built-in job types.
func Default() (*Registry, error) {
	specs, err := builtinSpecs()
	if err != nil {
		return nil, err
	}
	return NewRegistry(specs...)
}

func builtinSpecs() ([]Spec, error) {
	read := func(name string) ([]byte, error) {
		b, err := definitionsFS.ReadFile("definitions/" + name)
		if err != nil {
			return nil, fmt.Errorf("read embedded definition %s: %w", name, err)
		}
		return b, nil
	}

	builtins := []struct {
		jobType string
		stage   domain.Stage
		input   string
		output  string
		prompt  string
	}{
		{JobTypeParse, domain.StageParse, "parse.input.json", "game.json", "parse.tmpl"},
		{JobTypeDetectTriggers, domain.StageDetectTriggers, "detect_triggers.input.json", "triggers.json", "detect_triggers.tmpl"},
		{JobTypeRecap, domain.StageSynthesize, "recap.input.json", "recap.output.json", "recap.tmpl"},
	}

	specs := make([]Spec, 0, len(builtins))
	for _, b := range builtins {
		input, err := read(b.input)
		if err != nil {
			return nil, err
		}
		output, err := read(b.output)
		if err != nil {
			return nil, err
		}
		prompt, err := read(b.prompt)
		if err != nil {
			return nil, err
		}
		specs = append(specs, Spec{
			JobType:      b.jobType,
			Stage:        b.stage,
			InputSchema:  input,
			OutputSchema: output,
			Prompt:       string(prompt),
		})
	}
	return specs, nil
}
