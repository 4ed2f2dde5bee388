package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"adi/internal/errs"
)

var ErrDatasetNotFound = errors.New("platform: dataset not found")

type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	UUID string `json:"uuid"`
	Type string `json:"type,omitempty"`
}

// IsUUID reports whether s is a canonical RFC 4122 uuid of version 1-5.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	v := u.Version()
	return u.Variant() == uuid.RFC4122 && v >= 1 && v <= 5
}

type Datasets struct {
	c     *Client
	scope *Scope
}

func NewDatasets(c *Client, scope *Scope) *Datasets {
	return &Datasets{c: c, scope: scope}
}

const datasetQuery = `
query ($org: OrganizationRef, $datasetUuid: String, $datasetName: String) {
  dataset(org: $org, uuid: $datasetUuid, name: $datasetName) {
    id
    name
    uuid
  }
}`

// Meta looks a dataset up by uuid or name within the default organization.
func (d *Datasets) Meta(ctx context.Context, uuidOrName string) (Dataset, error) {
	org, err := d.scope.Default(ctx)
	if err != nil {
		return Dataset{}, err
	}
	vars := map[string]any{"org": org, "datasetUuid": nil, "datasetName": nil}
	if IsUUID(uuidOrName) {
		vars["datasetUuid"] = uuidOrName
	} else {
		vars["datasetName"] = uuidOrName
	}
	var out struct {
		Dataset []Dataset `json:"dataset"`
	}
	if err := d.c.Query(ctx, datasetQuery, vars, &out); err != nil {
		return Dataset{}, err
	}
	switch len(out.Dataset) {
	case 0:
		return Dataset{}, fmt.Errorf("%w: %s", ErrDatasetNotFound, uuidOrName)
	case 1:
		return out.Dataset[0], nil
	default:
		return Dataset{}, fmt.Errorf("platform: %d datasets match %q", len(out.Dataset), uuidOrName)
	}
}

const listQuery = `
query ($org: OrganizationRef) {
  dataset(org: $org) {
    id
    name
    uuid
  }
}`

func (d *Datasets) List(ctx context.Context) ([]Dataset, error) {
	org, err := d.scope.Default(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		Dataset []Dataset `json:"dataset"`
	}
	if err := d.c.Query(ctx, listQuery, map[string]any{"org": org}, &out); err != nil {
		return nil, err
	}
	return out.Dataset, nil
}

const createMutation = `
mutation ($ownerId: String!, $datasetName: String, $type: DatasetType) {
  createDataset(name: $datasetName, owner: $ownerId, type: $type) {
    name
    id
    uuid
    type
  }
}`

// Create makes a dataset owned by the default organization. An empty name
// lets the platform pick one.
func (d *Datasets) Create(ctx context.Context, name, typ string) (Dataset, error) {
	if IsUUID(name) {
		return Dataset{}, errs.Configuration("platform", "%q is not a valid dataset name", name)
	}
	org, err := d.scope.Default(ctx)
	if err != nil {
		return Dataset{}, err
	}
	vars := map[string]any{"ownerId": org.UUID, "datasetName": optional(name), "type": optional(typ)}
	var out struct {
		CreateDataset Dataset `json:"createDataset"`
	}
	if err := d.c.Query(ctx, createMutation, vars, &out); err != nil {
		return Dataset{}, err
	}
	return out.CreateDataset, nil
}

const uploadMutation = `
mutation UploadDataset($uuid: String!, $file: Upload!) {
  updateDataset(uuid: $uuid, file: $file) {
    id
    uuid
    name
  }
}`

// Upload replaces the dataset's content with the file at path, creating the
// dataset first when it does not exist.
func (d *Datasets) Upload(ctx context.Context, uuidOrName, path, typ string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, errs.Configuration("platform", "upload: %v", err)
	}
	defer f.Close()
	id, err := d.ensure(ctx, uuidOrName, typ)
	if err != nil {
		return Dataset{}, err
	}
	var out struct {
		UpdateDataset Dataset `json:"updateDataset"`
	}
	if err := d.c.Upload(ctx, uploadMutation, map[string]any{"uuid": id}, filepath.Base(path), f, &out); err != nil {
		return Dataset{}, err
	}
	return out.UpdateDataset, nil
}

// DefineOptions selects how a dataset's input transformation is defined:
// either inline source (Path or Code) or a named template bound to input
// datasets.
type DefineOptions struct {
	Path     string
	Code     string
	Template string
	Inputs   map[string]string
	Type     string
}

const saveCodeMutation = `
mutation SaveInputTransformation($uuid: String!, $code: String) {
  saveInputTransformation(uuid: $uuid, code: $code) {
    id
  }
}`

const saveTemplateMutation = `
mutation TemplateTransformation($output: String!, $template: TemplateRef, $inputs: [TransformationInputMapping], $org: OrganizationRef) {
  saveInputTransformation(
    uuid: $output,
    template: $template,
    inputs: $inputs,
    org: $org
  ) {
    id
    uuid
    name
  }
}`

func (d *Datasets) Define(ctx context.Context, uuidOrName string, o DefineOptions) (Dataset, error) {
	if o.Type == "" {
		o.Type = "csv"
	}
	inline := o.Path != "" || o.Code != ""
	templated := o.Template != "" || len(o.Inputs) > 0
	switch {
	case inline && !templated:
		code, err := readCode(o.Path, o.Code)
		if err != nil {
			return Dataset{}, err
		}
		id, err := d.ensure(ctx, uuidOrName, o.Type)
		if err != nil {
			return Dataset{}, err
		}
		var out struct {
			Save Dataset `json:"saveInputTransformation"`
		}
		if err := d.c.Query(ctx, saveCodeMutation, map[string]any{"uuid": id, "code": code}, &out); err != nil {
			return Dataset{}, err
		}
		return out.Save, nil

	case o.Template != "" && len(o.Inputs) > 0:
		id, err := d.ensure(ctx, uuidOrName, o.Type)
		if err != nil {
			return Dataset{}, err
		}
		org, err := d.scope.Default(ctx)
		if err != nil {
			return Dataset{}, err
		}
		aliases := make([]string, 0, len(o.Inputs))
		for alias := range o.Inputs {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		inputs := make([]map[string]any, 0, len(aliases))
		for _, alias := range aliases {
			inputs = append(inputs, map[string]any{"alias": alias, "dataset": map[string]any{"name": o.Inputs[alias]}})
		}
		vars := map[string]any{
			"output":   id,
			"template": map[string]any{"name": o.Template},
			"inputs":   inputs,
			"org":      org,
		}
		var out struct {
			Save Dataset `json:"saveInputTransformation"`
		}
		if err := d.c.Query(ctx, saveTemplateMutation, vars, &out); err != nil {
			return Dataset{}, err
		}
		return out.Save, nil
	}
	return Dataset{}, errs.Configuration("platform", "must provide code, a path, or a transformation template name and inputs")
}

const generateMutation = `
mutation GenerateDataset($uuid: String!) {
  generateDataset(uuid: $uuid) {
    id
    uuid
    name
  }
}`

// Generate asks the platform to run the dataset's input transformation.
func (d *Datasets) Generate(ctx context.Context, uuidOrName string) (Dataset, error) {
	id, err := d.ensure(ctx, uuidOrName, "")
	if err != nil {
		return Dataset{}, err
	}
	var out struct {
		GenerateDataset Dataset `json:"generateDataset"`
	}
	if err := d.c.Query(ctx, generateMutation, map[string]any{"uuid": id}, &out); err != nil {
		return Dataset{}, err
	}
	return out.GenerateDataset, nil
}

const deleteMutation = `
mutation DeleteDataset($uuid: String!) {
  deleteDataset(uuid: $uuid)
}`

func (d *Datasets) Delete(ctx context.Context, uuidOrName string) error {
	id, err := d.resolve(ctx, uuidOrName)
	if err != nil {
		return err
	}
	var out struct {
		DeleteDataset any `json:"deleteDataset"`
	}
	return d.c.Query(ctx, deleteMutation, map[string]any{"uuid": id}, &out)
}

// Download fetches the dataset's content. An empty format leaves the choice
// to the platform.
func (d *Datasets) Download(ctx context.Context, uuidOrName, format string) ([]byte, error) {
	id, err := d.resolve(ctx, uuidOrName)
	if err != nil {
		return nil, err
	}
	u := d.c.host + "/dataset/" + url.PathEscape(id)
	if format != "" {
		u += "?" + url.Values{"type": {format}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	d.c.authorize(req)
	resp, err := d.c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: download %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: download %s: status %d", id, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (d *Datasets) resolve(ctx context.Context, uuidOrName string) (string, error) {
	if IsUUID(uuidOrName) {
		return uuidOrName, nil
	}
	ds, err := d.Meta(ctx, uuidOrName)
	if err != nil {
		return "", err
	}
	return ds.UUID, nil
}

func (d *Datasets) ensure(ctx context.Context, uuidOrName, typ string) (string, error) {
	if uuidOrName != "" {
		id, err := d.resolve(ctx, uuidOrName)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDatasetNotFound) {
			return "", err
		}
	}
	ds, err := d.Create(ctx, uuidOrName, typ)
	if err != nil {
		return "", err
	}
	return ds.UUID, nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// readCode returns inline code, or the contents of path. Exactly one of the
// two must be set.
func readCode(path, code string) (string, error) {
	switch {
	case path == "" && code == "":
		return "", errs.Configuration("platform", "need either a path to a transformation code file or the code itself")
	case path != "" && code != "":
		return "", errs.Configuration("platform", "give either a path to a transformation code file or code, not both")
	case code != "":
		return code, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errs.Configuration("platform", "read code: %v", err)
	}
	return string(b), nil
}
