package management

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo is the OpenAPI document served under /swagger. Keep it in step
// with the route annotations in handler.go.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Flattener Stage API",
	Description:      "Admin API of the field values flattener stage.",
	InfoInstanceName: swag.Name,
	SwaggerTemplate:  swaggerTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// RegisterDocs serves the swagger UI and doc.json.
func RegisterDocs(router gin.IRouter) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

const swaggerTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/transform/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["transform"],
                "summary": "Get the active transform configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/stage.Snapshot"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transform"],
                "summary": "Update the transform configuration",
                "parameters": [
                    {"type": "string", "description": "Operator making the change", "name": "X-Changed-By", "in": "header"},
                    {"description": "Transform options", "name": "options", "in": "body", "required": true, "schema": {"type": "object", "additionalProperties": true}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/management.UpdateConfigResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/transform/definition": {
            "get": {
                "produces": ["application/json"],
                "tags": ["transform"],
                "summary": "Describe the transform options",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/transform.ConfigKey"}}}
                }
            }
        },
        "/transform/preview": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transform"],
                "summary": "Preview the transform on one record",
                "parameters": [
                    {"description": "Record to transform", "name": "record", "in": "body", "required": true, "schema": {"$ref": "#/definitions/management.PreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/management.PreviewResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "stage.PredicateSnapshot": {
            "type": "object",
            "properties": {
                "expression": {"type": "string"},
                "negate": {"type": "boolean"}
            }
        },
        "stage.Snapshot": {
            "type": "object",
            "properties": {
                "stage": {"type": "string"},
                "source": {"type": "string"},
                "field_name": {"type": "string"},
                "enabled": {"type": "boolean"},
                "version": {"type": "integer"},
                "predicate": {"$ref": "#/definitions/stage.PredicateSnapshot"},
                "definition": {"type": "array", "items": {"$ref": "#/definitions/transform.ConfigKey"}}
            }
        },
        "stage.StageConfig": {
            "type": "object",
            "properties": {
                "stage": {"type": "string"},
                "field_name": {"type": "string"},
                "enabled": {"type": "boolean"},
                "version": {"type": "integer"},
                "updated_by": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "transform.ConfigKey": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "type": {"type": "string"},
                "importance": {"type": "string"},
                "documentation": {"type": "string"},
                "required": {"type": "boolean"},
                "default": {}
            }
        },
        "management.UpdateConfigResponse": {
            "type": "object",
            "properties": {
                "config": {"$ref": "#/definitions/stage.StageConfig"},
                "event_sent": {"type": "boolean"},
                "event_error": {"type": "string"}
            }
        },
        "management.PreviewRequest": {
            "type": "object",
            "properties": {
                "topic": {"type": "string"},
                "partition": {"type": "integer"},
                "key": {},
                "value": {},
                "timestamp": {"type": "integer", "description": "unix milliseconds"},
                "headers": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "management.PreviewResponse": {
            "type": "object",
            "properties": {
                "outcome": {"type": "string"},
                "record": {"type": "object", "additionalProperties": true}
            }
        }
    }
}`
