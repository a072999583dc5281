// Package docs holds the Swagger 2.0 document served under /swagger. It is
// maintained by hand from the @Router annotations on the handlers, and
// router tests check that every API route has an entry here.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/cases": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Cases"],
                "summary": "List my cases",
                "operationId": "listMyCases",
                "parameters": [
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "400": {"description": "Unknown status", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Cases"],
                "summary": "Submit a case",
                "operationId": "createCase",
                "parameters": [
                    {"description": "Intake", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateCaseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "400": {"description": "Invalid intake", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cases/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Cases"],
                "summary": "Get my case",
                "operationId": "getCase",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Case not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cases/{id}/view-results": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Cases"],
                "summary": "Mark classification as viewed",
                "operationId": "viewResults",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cases/{id}/pay": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Cases"],
                "summary": "Purchase a plan",
                "operationId": "markPaid",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Plan", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.MarkPaidRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "400": {"description": "Unknown plan", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Case not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Not classified yet or payment in progress", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cases/{id}/documents": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "List case documents",
                "operationId": "listDocuments",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Upload a document",
                "operationId": "uploadDocument",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true},
                    {"enum": ["ID", "ADDRESS_PROOF", "BANK_STATEMENT", "INVOICE", "OTHER"], "type": "string", "description": "Document type", "name": "fileType", "in": "formData", "required": true},
                    {"type": "file", "description": "The file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cases/{id}/documents/{docId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/octet-stream"],
                "tags": ["Documents"],
                "summary": "Download a document",
                "operationId": "downloadDocument",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "description": "Document ID", "name": "docId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Case or document not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/cases": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List all cases",
                "operationId": "adminListCases",
                "parameters": [
                    {"type": "string", "description": "Owner name or email", "name": "search", "in": "query"},
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "403": {"description": "Admin only", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/cases/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Get any case with notes",
                "operationId": "adminGetCase",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Delete a case",
                "operationId": "deleteCase",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "409": {"description": "Already deleted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/cases/{id}/status": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Set case status",
                "operationId": "setStatus",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true},
                    {"description": "Status", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            }
        },
        "/admin/cases/{id}/classify": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Classify a case",
                "operationId": "classify",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true},
                    {"description": "Classification", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ClassifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "400": {"description": "Partial classification", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/cases/{id}/notes": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List notes",
                "operationId": "listNotes",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Add a note",
                "operationId": "addNote",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Case ID", "name": "id", "in": "path", "required": true},
                    {"description": "Note", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AddNoteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            }
        },
        "/admin/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Case overview",
                "operationId": "stats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            }
        },
        "/admin/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List users",
                "operationId": "listUsers",
                "parameters": [
                    {"type": "string", "description": "Name or email", "name": "search", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}
                }
            }
        },
        "/chat/conversations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Staff inbox",
                "operationId": "listConversations",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "403": {"description": "Admin only", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/messages/{key}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Poll a conversation",
                "operationId": "listMessages",
                "parameters": [
                    {"type": "string", "description": "Conversation key (case or user ID)", "name": "key", "in": "path", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.Envelope"},
                        "headers": {
                            "ETag": {"type": "string", "description": "Weak validator of the conversation state"},
                            "X-Poll-Interval": {"type": "integer", "description": "Seconds between polls"}
                        }
                    },
                    "304": {"description": "Not Modified"},
                    "402": {"description": "Chat locked until purchase", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Send a message",
                "operationId": "postMessage",
                "parameters": [
                    {"type": "string", "description": "Conversation key (case or user ID)", "name": "key", "in": "path", "required": true},
                    {"type": "string", "description": "Key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "402": {"description": "Chat locked until purchase", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Account"],
                "summary": "Current user",
                "operationId": "me",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "401": {"description": "No session", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/email": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Account"],
                "summary": "Change email",
                "operationId": "updateEmail",
                "parameters": [
                    {"description": "New email", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpdateEmailRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/password": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Account"],
                "summary": "Change password",
                "operationId": "updatePassword",
                "parameters": [
                    {"description": "Passwords", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpdatePasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}},
                    "403": {"description": "Wrong current password", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "request_id": {"type": "string", "example": "6f1c2d3e4b5a69788796a5b4c3d2e1f0"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "case not found"}
            }
        },
        "handlers.CreateCaseRequest": {
            "type": "object",
            "required": ["freeTextReason"],
            "properties": {
                "title": {"type": "string"},
                "country": {"type": "string", "example": "Germany"},
                "accountType": {"type": "string", "enum": ["PERSONAL", "BUSINESS"]},
                "restrictionType": {"type": "string", "enum": ["TEMPORARY", "PERMANENT", "FUNDS_RELEASE", "KYC_VERIFICATION", "UNKNOWN"]},
                "freeTextReason": {"type": "string"}
            }
        },
        "handlers.MarkPaidRequest": {
            "type": "object",
            "required": ["plan"],
            "properties": {"plan": {"type": "string", "enum": ["PERSONAL", "BUSINESS"]}}
        },
        "handlers.SetStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {"status": {"type": "string", "enum": ["PENDING", "UNDER_REVIEW", "RESOLVED", "DISMISSED"]}}
        },
        "handlers.ClassifyRequest": {
            "type": "object",
            "properties": {
                "likelihood": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH"]},
                "fundLikelihood": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH"]},
                "recommendation": {"type": "string"}
            }
        },
        "handlers.AddNoteRequest": {
            "type": "object",
            "properties": {"content": {"type": "string"}}
        },
        "handlers.PostMessageRequest": {
            "type": "object",
            "required": ["content"],
            "properties": {"content": {"type": "string"}}
        },
        "handlers.UpdateEmailRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {"email": {"type": "string"}}
        },
        "handlers.UpdatePasswordRequest": {
            "type": "object",
            "required": ["newPassword"],
            "properties": {
                "currentPassword": {"type": "string"},
                "newPassword": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Session token: \"Bearer <jwt>\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Case Portal API",
	Description:      "Account-restriction case intake, staff classification and paid client messaging.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
