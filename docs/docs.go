// Package docs registers the OpenAPI document served at /swagger/*.
// Regenerate with: swag init -g cmd/api/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "email": "support@example.com"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Store unavailable"}
                }
            }
        },
        "/auth/signup": {
            "post": {
                "tags": ["auth"],
                "summary": "Sign up",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.SignupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.SessionResponse"}},
                    "400": {"description": "Invalid request, validation error or unknown referral code", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "409": {"description": "Email already exists", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/auth/signin": {
            "post": {
                "tags": ["auth"],
                "summary": "Sign in",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.SigninRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.SessionResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["auth"],
                "summary": "Current user",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.MeResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/referrals/record-event": {
            "post": {
                "tags": ["referrals"],
                "summary": "Record an activation event",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/referral.RecordEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/referral.RecordEventResponse"}},
                    "400": {"description": "Missing fields or invalid event name", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/referrals/trigger-first-project": {
            "post": {
                "tags": ["referrals"],
                "summary": "Signal a saved project",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/referral.TriggerFirstProjectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/referral.TriggerFirstProjectResponse"}},
                    "400": {"description": "Missing userId", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/referrals/summary": {
            "get": {
                "tags": ["referrals"],
                "summary": "Referral summary",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Referrer ID", "name": "id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/referral.SummaryResponse"}},
                    "400": {"description": "Missing id", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/referrals/invite/{code}": {
            "get": {
                "tags": ["referrals"],
                "summary": "Resolve an invite code",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Referral code", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/referral.Invitation"}},
                    "404": {"description": "Unknown code", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/referrals/reconcile": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["referrals"],
                "summary": "Repair missed milestone grants",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/referral.ReconcileResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httputil.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "auth.SignupRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "referralCode": {"type": "string"}
            }
        },
        "auth.SigninRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "auth.UserResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "referralCode": {"type": "string"}
            }
        },
        "auth.SessionResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/auth.UserResponse"},
                "token": {"type": "string"}
            }
        },
        "auth.MeResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/auth.UserResponse"}
            }
        },
        "referral.RecordEventRequest": {
            "type": "object",
            "properties": {
                "referredId": {"type": "string"},
                "referredEmail": {"type": "string"},
                "eventName": {"type": "string"},
                "props": {"type": "object"}
            }
        },
        "referral.RecordEventResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "activated": {"type": "boolean"}
            }
        },
        "referral.TriggerFirstProjectRequest": {
            "type": "object",
            "properties": {
                "userId": {"type": "string"}
            }
        },
        "referral.TriggerFirstProjectResponse": {
            "type": "object",
            "properties": {
                "showPrompt": {"type": "boolean"}
            }
        },
        "referral.ReferralSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "referralCode": {"type": "string"},
                "referralStatus": {"type": "string"},
                "completed": {"type": "boolean"},
                "required": {"type": "array", "items": {"type": "string"}},
                "activationEvents": {"type": "object", "additionalProperties": {"type": "boolean"}}
            }
        },
        "referral.SummaryResponse": {
            "type": "object",
            "properties": {
                "referrals": {"type": "array", "items": {"$ref": "#/definitions/referral.ReferralSummary"}}
            }
        },
        "referral.InvitingUser": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "referralCode": {"type": "string"}
            }
        },
        "referral.Invitation": {
            "type": "object",
            "properties": {
                "referrer": {"$ref": "#/definitions/referral.InvitingUser"},
                "giftCredits": {"type": "integer"}
            }
        },
        "referral.ReconcileResponse": {
            "type": "object",
            "properties": {
                "granted": {"type": "array", "items": {"type": "string"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the access token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Aveksana Referrals API",
	Description:      "Referral attribution, activation tracking and reward granting.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
