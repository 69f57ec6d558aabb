package render

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/tfgate/tfgate/internal/toolerr"
)

var inlinePasswordRe = regexp.MustCompile(`(?m)^\s*password\s*=`)

func renderToDir(t *testing.T, resources []Resource) (string, string) {
	t.Helper()
	r, err := NewHCLRenderer()
	if err != nil {
		t.Fatalf("NewHCLRenderer() error = %v", err)
	}
	dir := t.TempDir()
	if err := r.WriteConfig(dir, "us-east-1", "dev", resources); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "main.tf"))
	if err != nil {
		t.Fatalf("reading main.tf: %v", err)
	}
	return dir, string(data)
}

func TestWriteConfigInstance(t *testing.T) {
	_, got := renderToDir(t, []Resource{{
		Type:   "aws_instance",
		Config: map[string]any{"instance_type": "t3.small", "root_volume_size": float64(50)},
	}})

	for _, want := range []string{
		`provider "aws"`,
		`region = "us-east-1"`,
		`resource "aws_instance" "aws_instance_0"`,
		`instance_type = "t3.small"`,
		`volume_size = 50`,
		`Environment = "dev"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("main.tf missing %q:\n%s", want, got)
		}
	}
}

func TestWriteConfigDefaults(t *testing.T) {
	_, got := renderToDir(t, []Resource{{Type: "aws_instance", Config: nil}})

	if !strings.Contains(got, `instance_type = "t3.micro"`) {
		t.Errorf("default instance type not applied:\n%s", got)
	}
	if !strings.Contains(got, "volume_size = 30") {
		t.Errorf("default volume size not applied:\n%s", got)
	}
}

func TestWriteConfigDatabase(t *testing.T) {
	_, got := renderToDir(t, []Resource{{
		Type: "aws_db_instance",
		Config: map[string]any{
			"engine":            "postgres",
			"instance_class":    "db.t3.small",
			"allocated_storage": float64(100),
			"multi_az":          true,
		},
	}})

	for _, want := range []string{
		`engine                      = "postgres"`,
		`instance_class              = "db.t3.small"`,
		"allocated_storage           = 100",
		"multi_az                    = true",
		"manage_master_user_password = true",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("main.tf missing %q:\n%s", want, got)
		}
	}
	// manage_master_user_password replaces any literal password attribute.
	if inlinePasswordRe.MatchString(got) {
		t.Errorf("rendered config contains an inline password:\n%s", got)
	}
}

func TestWriteConfigBucketVersioning(t *testing.T) {
	_, got := renderToDir(t, []Resource{{
		Type:   "aws_s3_bucket",
		Config: map[string]any{"bucket": "tfgate-logs", "versioning": true},
	}})

	if !strings.Contains(got, `bucket = "tfgate-logs"`) {
		t.Errorf("bucket name missing:\n%s", got)
	}
	if !strings.Contains(got, `resource "aws_s3_bucket_versioning"`) {
		t.Errorf("versioning block missing:\n%s", got)
	}
}

func TestWriteConfigLoadBalancerName(t *testing.T) {
	_, got := renderToDir(t, []Resource{{Type: "aws_lb", Config: nil}})

	if !strings.Contains(got, `name               = "aws-lb-0"`) {
		t.Errorf("lb name not hyphenated:\n%s", got)
	}
	if !strings.Contains(got, `load_balancer_type = "application"`) {
		t.Errorf("default lb type not applied:\n%s", got)
	}
}

func TestWriteConfigMultipleResourcesIndexed(t *testing.T) {
	_, got := renderToDir(t, []Resource{
		{Type: "aws_instance", Config: nil},
		{Type: "aws_instance", Config: nil},
	})

	if !strings.Contains(got, `"aws_instance_0"`) || !strings.Contains(got, `"aws_instance_1"`) {
		t.Errorf("resource names not index-suffixed:\n%s", got)
	}
}

func TestWriteConfigRejections(t *testing.T) {
	r, err := NewHCLRenderer()
	if err != nil {
		t.Fatalf("NewHCLRenderer() error = %v", err)
	}

	tests := []struct {
		name      string
		region    string
		resources []Resource
	}{
		{"unknown type", "us-east-1", []Resource{{Type: "aws_rocket_launcher"}}},
		{"empty list", "us-east-1", nil},
		{"malformed region", `us-east-1"\ninjected`, []Resource{{Type: "aws_instance"}}},
		{"bucket without name", "us-east-1", []Resource{{Type: "aws_s3_bucket"}}},
		{"bad lb type", "us-east-1", []Resource{{Type: "aws_lb", Config: map[string]any{"load_balancer_type": "teleporting"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			err := r.WriteConfig(dir, tt.region, "dev", tt.resources)
			if !toolerr.Is(err, toolerr.KindInvalidParameters) {
				t.Fatalf("WriteConfig() error = %v, want InvalidParameters", err)
			}
			if _, serr := os.Stat(filepath.Join(dir, "main.tf")); !os.IsNotExist(serr) {
				t.Fatal("main.tf written despite rejection")
			}
		})
	}
}

func TestWriteConfigReplacesExisting(t *testing.T) {
	r, err := NewHCLRenderer()
	if err != nil {
		t.Fatalf("NewHCLRenderer() error = %v", err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.tf"), []byte("stale"), 0600); err != nil {
		t.Fatalf("seeding stale config: %v", err)
	}

	if err := r.WriteConfig(dir, "eu-west-1", "prod", []Resource{{Type: "aws_instance"}}); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "main.tf"))
	if strings.Contains(string(data), "stale") {
		t.Fatal("stale config not replaced")
	}
	if !strings.Contains(string(data), `region = "eu-west-1"`) {
		t.Fatalf("new region missing:\n%s", data)
	}
}
