//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// MountSwagger serves the API description and UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func init() {
	swag.Register(swaggerInfo.InstanceName(), swaggerInfo)
}

var swaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "imgclf API",
	Description:      "Image classification over HTTP.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

const docTemplate = `{
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
        "/predict": {
            "post": {
                "summary": "Classify an uploaded image",
                "consumes": ["multipart/form-data", "application/octet-stream", "image/jpeg", "image/png"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "file", "name": "file", "in": "formData", "description": "image to classify"},
                    {"type": "integer", "name": "top_k", "in": "query", "description": "include the k best classes"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PredictResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/model": {
            "get": {
                "summary": "Describe the loaded model",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelInfo"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/healthz": {"get": {"summary": "Liveness probe", "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"summary": "Readiness probe", "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}}}
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid image: image: unknown format"}
            }
        },
        "types.RankedClass": {
            "type": "object",
            "properties": {
                "class": {"type": "string", "example": "dog"},
                "index": {"type": "integer", "example": 1},
                "score": {"type": "number", "example": 0.7}
            }
        },
        "types.PredictResponse": {
            "type": "object",
            "properties": {
                "class": {"type": "string", "example": "dog"},
                "confidence": {"type": "number", "example": 0.7},
                "all_scores": {"type": "array", "items": {"type": "number"}},
                "top": {"type": "array", "items": {"$ref": "#/definitions/types.RankedClass"}}
            }
        },
        "types.ModelInfo": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "example": "bundle"},
                "input_shape": {"type": "array", "items": {"type": "integer"}},
                "classes": {"type": "integer", "example": 4},
                "resize": {"type": "string", "example": "bilinear"},
                "labels": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`
