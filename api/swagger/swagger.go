package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Student Clearance API",
        "description": "Multi-department student clearance workflow: submission fan-out, department reviews, final approval and certificate issuance",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Clearance", "description": "Student clearance requests and progress"},
        {"name": "Departments", "description": "Department review queues and decisions"},
        {"name": "Certificates", "description": "Certificate verification and download"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate a user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the caller's sessions",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/clearance": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Submit a clearance request",
                "description": "Creates the request and fans it out to every department track. Refused while an earlier request is still outstanding.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitClearanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Outstanding request exists"}
                }
            },
            "get": {
                "tags": ["Clearance"],
                "summary": "List clearance requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/clearance/{id}": {
            "get": {
                "tags": ["Clearance"],
                "summary": "Get one clearance request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/clearance/{id}/status": {
            "get": {
                "tags": ["Clearance"],
                "summary": "Per-department progress view",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/clearance/{id}/resubmit": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Re-open rejected department tracks",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ResubmitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Nothing rejected"},
                    "409": {"description": "Review still in progress"}
                }
            }
        },
        "/clearance/{id}/resubmit/{department}": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Re-open one rejected department track",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "department", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ResubmitRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Track is not rejected"}
                }
            }
        },
        "/clearance/{id}/final-approval": {
            "post": {
                "tags": ["Clearance"],
                "summary": "Grant final approval and issue the certificate",
                "description": "Idempotent: approving an already-finalized request returns the original certificate.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/FinalApproveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not all departments approved"}
                }
            }
        },
        "/departments/{department}/queue": {
            "get": {
                "tags": ["Departments"],
                "summary": "Pending review queue for a department",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "department", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records/{id}/decision": {
            "post": {
                "tags": ["Departments"],
                "summary": "Approve or reject a pending department record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Record already decided"}
                }
            }
        },
        "/certificates/{id}/verify": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Verify a certificate identifier",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/{id}/pdf": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Download the printable certificate",
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "404": {"description": "Not found"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "SubmitClearanceRequest": {
            "type": "object",
            "properties": {
                "registration_number": {"type": "string"},
                "guardian_name": {"type": "string"},
                "program": {"type": "string"},
                "term": {"type": "string"},
                "degree_status": {"type": "string"}
            },
            "required": ["registration_number", "guardian_name", "program", "term", "degree_status"]
        },
        "ResubmitRequest": {
            "type": "object",
            "properties": {
                "registration_number": {"type": "string"},
                "guardian_name": {"type": "string"},
                "program": {"type": "string"},
                "term": {"type": "string"},
                "degree_status": {"type": "string"}
            }
        },
        "DecideRequest": {
            "type": "object",
            "properties": {
                "outcome": {"type": "string", "enum": ["APPROVE", "REJECT"]},
                "remarks": {"type": "string"}
            },
            "required": ["outcome"]
        },
        "FinalApproveRequest": {
            "type": "object",
            "properties": {
                "remarks": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
