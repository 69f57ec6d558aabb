package registry

// JSON schemas for the tool catalog. additionalProperties is false
// everywhere so typos in argument names fail loudly instead of being
// silently ignored.

func userIDProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Canonical lowercase UUID identifying the workspace owner.",
	}
}

func environmentProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Deployment environment, e.g. dev, staging, prod.",
	}
}

func providerProperty() map[string]any {
	return map[string]any{
		"type": "string",
		"enum": []any{"aws", "azure", "gcp"},
	}
}

func resourcesProperty() map[string]any {
	return map[string]any{
		"type":     "array",
		"minItems": 1,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{
					"type": "string",
					"enum": []any{"aws_instance", "aws_db_instance", "aws_s3_bucket", "aws_lb"},
				},
				"config": map[string]any{"type": "object"},
			},
			"required":             []any{"type"},
			"additionalProperties": false,
		},
	}
}

func regionProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Provider region, e.g. us-east-1.",
	}
}

// provisionSchema covers plan, apply, and validate. Validate can run
// against an already rendered workspace, so resources are optional there.
func provisionSchema(requireResources bool) map[string]any {
	required := []any{"user_id", "environment", "region"}
	if requireResources {
		required = append(required, "resources")
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":     userIDProperty(),
			"environment": environmentProperty(),
			"region":      regionProperty(),
			"provider":    providerProperty(),
			"resources":   resourcesProperty(),
		},
		"required":             required,
		"additionalProperties": false,
	}
}

// applySchema accepts either a plan_id pointing at a saved plan or an
// inline resource list; the handler enforces that exactly one path is
// taken.
func applySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":     userIDProperty(),
			"environment": environmentProperty(),
			"region":      regionProperty(),
			"provider":    providerProperty(),
			"resources":   resourcesProperty(),
			"plan_id": map[string]any{
				"type":        "string",
				"description": "Id of a plan produced by plan_infrastructure; applies exactly that plan.",
			},
		},
		"required":             []any{"user_id", "environment"},
		"additionalProperties": false,
	}
}

func confirmSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":     userIDProperty(),
			"environment": environmentProperty(),
			"provider":    providerProperty(),
			"confirm": map[string]any{
				"type":        "boolean",
				"description": "Must be true to proceed with a destructive operation.",
			},
		},
		"required":             []any{"user_id", "environment"},
		"additionalProperties": false,
	}
}

func workspaceSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":     userIDProperty(),
			"environment": environmentProperty(),
		},
		"required":             []any{"user_id", "environment"},
		"additionalProperties": false,
	}
}

func estimateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"region":    regionProperty(),
			"resources": resourcesProperty(),
		},
		"required":             []any{"region", "resources"},
		"additionalProperties": false,
	}
}
