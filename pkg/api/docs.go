package api

import "github.com/swaggo/swag"

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
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    },
    "paths": {
        "/channels": {
            "get": {"tags": ["channels"], "summary": "List channels", "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["channels"], "summary": "Create a channel", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/api.CreateChannelRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/channels/{key}": {
            "get": {"tags": ["channels"], "summary": "Get a channel", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"in": "path", "name": "key", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "delete": {"tags": ["channels"], "summary": "Delete a channel", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"in": "path", "name": "key", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/channels/{key}/latest": {
            "get": {"tags": ["channels"], "summary": "Latest series written to a channel", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"in": "path", "name": "key", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/frame/write": {
            "get": {"tags": ["frames"], "summary": "Open a websocket writer session", "security": [{"ApiKeyAuth": []}],
                "produces": ["application/x-framewire"],
                "responses": {"101": {"description": "Switching Protocols"}}}
        },
        "/frame/stream": {
            "get": {"tags": ["frames"], "summary": "Open a websocket streamer session", "security": [{"ApiKeyAuth": []}],
                "produces": ["application/x-framewire"],
                "responses": {"101": {"description": "Switching Protocols"}}}
        },
        "/stats": {
            "get": {"tags": ["diagnostics"], "summary": "Series store statistics", "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "api.CreateChannelRequest": {
            "type": "object",
            "properties": {
                "key": {"type": "integer"},
                "name": {"type": "string"},
                "data_type": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:9090",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "framewire API",
	Description:      "Channel management and websocket frame transport for framewire.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
