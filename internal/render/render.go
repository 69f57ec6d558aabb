// Package render turns declarative resource requests into an HCL
// configuration file inside a workspace. The resource catalog is closed:
// unknown types are rejected, never defaulted.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/tfgate/tfgate/internal/toolerr"
)

// Resource is one requested piece of infrastructure.
type Resource struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// Renderer writes the configuration for a set of resources into a
// workspace.
type Renderer interface {
	WriteConfig(workspacePath, region, environment string, resources []Resource) error
}

const configFileName = "main.tf"

var regionRe = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)

// HCLRenderer renders main.tf from built-in templates.
type HCLRenderer struct {
	tmpl *template.Template
}

func NewHCLRenderer() (*HCLRenderer, error) {
	tmpl, err := template.New("config").Parse(configTemplates)
	if err != nil {
		return nil, fmt.Errorf("parsing configuration templates: %w", err)
	}
	return &HCLRenderer{tmpl: tmpl}, nil
}

// WriteConfig renders every resource and writes the result to main.tf in
// one atomic replace. An invalid resource leaves the workspace untouched.
func (r *HCLRenderer) WriteConfig(workspacePath, region, environment string, resources []Resource) error {
	if !regionRe.MatchString(region) {
		return toolerr.New(toolerr.KindInvalidParameters, "malformed region %q", region)
	}
	if len(resources) == 0 {
		return toolerr.New(toolerr.KindInvalidParameters, "no resources requested")
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "header", headerView{Region: region}); err != nil {
		return fmt.Errorf("rendering provider block: %w", err)
	}

	for i, res := range resources {
		view, name, err := viewFor(res, i, environment)
		if err != nil {
			return err
		}
		buf.WriteString("\n")
		if err := r.tmpl.ExecuteTemplate(&buf, name, view); err != nil {
			return fmt.Errorf("rendering %s: %w", res.Type, err)
		}
	}

	tmp, err := os.CreateTemp(workspacePath, ".main.tf.*")
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(workspacePath, configFileName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("installing config file: %w", err)
	}
	return nil
}

// viewFor maps one resource to its template view. The switch is the
// whole catalog.
func viewFor(res Resource, index int, environment string) (any, string, error) {
	name := fmt.Sprintf("%s_%d", res.Type, index)
	switch res.Type {
	case "aws_instance":
		return instanceView{
			Name:         name,
			AMI:          stringOpt(res.Config, "ami", "ami-0c7217cdde317cfec"),
			InstanceType: stringOpt(res.Config, "instance_type", "t3.micro"),
			VolumeSize:   intOpt(res.Config, "root_volume_size", 30),
			VolumeType:   stringOpt(res.Config, "root_volume_type", "gp3"),
			Environment:  environment,
		}, "aws_instance", nil
	case "aws_db_instance":
		return databaseView{
			Name:             name,
			Engine:           stringOpt(res.Config, "engine", "mysql"),
			InstanceClass:    stringOpt(res.Config, "instance_class", "db.t3.micro"),
			AllocatedStorage: intOpt(res.Config, "allocated_storage", 20),
			StorageType:      stringOpt(res.Config, "storage_type", "gp3"),
			MultiAZ:          boolOpt(res.Config, "multi_az", false),
			Environment:      environment,
		}, "aws_db_instance", nil
	case "aws_s3_bucket":
		bucket := stringOpt(res.Config, "bucket", "")
		if bucket == "" {
			return nil, "", toolerr.New(toolerr.KindInvalidParameters, "aws_s3_bucket requires a bucket name")
		}
		return bucketView{
			Name:        name,
			Bucket:      bucket,
			Versioning:  boolOpt(res.Config, "versioning", false),
			Environment: environment,
		}, "aws_s3_bucket", nil
	case "aws_lb":
		lbType := stringOpt(res.Config, "load_balancer_type", "application")
		if lbType != "application" && lbType != "network" {
			return nil, "", toolerr.New(toolerr.KindInvalidParameters, "unsupported load balancer type %q", lbType)
		}
		return loadBalancerView{
			Name: name,
			// The lb name attribute must be DNS-compatible.
			DNSName:     strings.ReplaceAll(name, "_", "-"),
			LBType:      lbType,
			Internal:    boolOpt(res.Config, "internal", false),
			Environment: environment,
		}, "aws_lb", nil
	default:
		return nil, "", toolerr.New(toolerr.KindInvalidParameters, "unsupported resource type %q", res.Type)
	}
}

type headerView struct {
	Region string
}

type instanceView struct {
	Name         string
	AMI          string
	InstanceType string
	VolumeSize   int
	VolumeType   string
	Environment  string
}

type databaseView struct {
	Name             string
	Engine           string
	InstanceClass    string
	AllocatedStorage int
	StorageType      string
	MultiAZ          bool
	Environment      string
}

type bucketView struct {
	Name        string
	Bucket      string
	Versioning  bool
	Environment string
}

type loadBalancerView struct {
	Name        string
	DNSName     string
	LBType      string
	Internal    bool
	Environment string
}

func stringOpt(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intOpt also accepts float64: JSON numbers decode to float64.
func intOpt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func boolOpt(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

const configTemplates = `{{define "header"}}terraform {
  required_providers {
    aws = {
      source  = "hashicorp/aws"
      version = "~> 5.0"
    }
  }
}

provider "aws" {
  region = "{{.Region}}"
}
{{end}}{{define "aws_instance"}}resource "aws_instance" "{{.Name}}" {
  ami           = "{{.AMI}}"
  instance_type = "{{.InstanceType}}"

  root_block_device {
    volume_size = {{.VolumeSize}}
    volume_type = "{{.VolumeType}}"
  }

  tags = {
    Name        = "{{.Name}}"
    Environment = "{{.Environment}}"
  }
}
{{end}}{{define "aws_db_instance"}}resource "aws_db_instance" "{{.Name}}" {
  engine                      = "{{.Engine}}"
  instance_class              = "{{.InstanceClass}}"
  allocated_storage           = {{.AllocatedStorage}}
  storage_type                = "{{.StorageType}}"
  multi_az                    = {{.MultiAZ}}
  manage_master_user_password = true
  skip_final_snapshot         = true

  tags = {
    Name        = "{{.Name}}"
    Environment = "{{.Environment}}"
  }
}
{{end}}{{define "aws_s3_bucket"}}resource "aws_s3_bucket" "{{.Name}}" {
  bucket = "{{.Bucket}}"

  tags = {
    Name        = "{{.Name}}"
    Environment = "{{.Environment}}"
  }
}
{{if .Versioning}}
resource "aws_s3_bucket_versioning" "{{.Name}}_versioning" {
  bucket = aws_s3_bucket.{{.Name}}.id

  versioning_configuration {
    status = "Enabled"
  }
}
{{end}}{{end}}{{define "aws_lb"}}resource "aws_lb" "{{.Name}}" {
  name               = "{{.DNSName}}"
  load_balancer_type = "{{.LBType}}"
  internal           = {{.Internal}}

  tags = {
    Name        = "{{.Name}}"
    Environment = "{{.Environment}}"
  }
}
{{end}}`
