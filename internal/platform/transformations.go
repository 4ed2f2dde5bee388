package platform

import "context"

type Transformation struct {
	ID   string `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// TransformationSource is the body of a template: exactly one of Path or
// Code, plus the names of the inputs it declares.
type TransformationSource struct {
	Path   string
	Code   string
	Inputs []string
}

type Transformations struct {
	c     *Client
	scope *Scope
}

func NewTransformations(c *Client, scope *Scope) *Transformations {
	return &Transformations{c: c, scope: scope}
}

const createTemplateMutation = `
mutation CreateTransformationTemplate($name: String!, $inputs: [String], $code: String!, $owner: OrganizationRef!) {
  createTransformationTemplate(
    name: $name,
    inputs: $inputs,
    code: $code,
    owner: $owner
  ) {
    id
    uuid
    name
  }
}`

// Define registers a named transformation template in the default
// organization. The source is checked before any request is made.
func (t *Transformations) Define(ctx context.Context, name string, src TransformationSource) (Transformation, error) {
	code, err := readCode(src.Path, src.Code)
	if err != nil {
		return Transformation{}, err
	}
	org, err := t.scope.Default(ctx)
	if err != nil {
		return Transformation{}, err
	}
	inputs := src.Inputs
	if inputs == nil {
		inputs = []string{}
	}
	vars := map[string]any{"name": name, "inputs": inputs, "code": code, "owner": org}
	var out struct {
		Create Transformation `json:"createTransformationTemplate"`
	}
	if err := t.c.Query(ctx, createTemplateMutation, vars, &out); err != nil {
		return Transformation{}, err
	}
	return out.Create, nil
}
