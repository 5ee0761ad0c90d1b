package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EBN Besu API",
        "description": "Class enrollment and grading backed by a Hyperledger Besu ledger",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Accounts, sessions and custodial wallet provisioning"},
        {"name": "Classes", "description": "Class lifecycle and roster imports"},
        {"name": "Enrollment", "description": "Enrollment requests, review and on-chain whitelisting"},
        {"name": "Assignments", "description": "Assignment metadata"},
        {"name": "Grading", "description": "Submissions, scores and on-chain verification"},
        {"name": "Wallet", "description": "Custodial key escrow and one-time disclosure"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a teacher or student account",
                "description": "Students receive a server-side wallet keypair sealed under their initial secret.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Classes"],
                "summary": "Create a class and initialise it on both contracts",
                "responses": {
                    "201": {"description": "Created; meta.ledger reports the chain leg outcome"},
                    "409": {"description": "Class code already used"}
                }
            }
        },
        "/classes/{id}/close": {
            "post": {
                "tags": ["Classes"],
                "summary": "Close a class (terminal)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Closed"},
                    "409": {"description": "Already closed"}
                }
            }
        },
        "/classes/{id}/invite": {
            "post": {
                "tags": ["Classes"],
                "summary": "Bulk import a roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Per-row results (CREATED or SKIPPED)"}
                }
            }
        },
        "/classes/{id}/enrollment/request": {
            "post": {
                "tags": ["Enrollment"],
                "summary": "Request enrollment in a class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Pending request created"},
                    "409": {"description": "Already requested or processed"},
                    "412": {"description": "No wallet registered"}
                }
            }
        },
        "/approvals/{id}/approve": {
            "post": {
                "tags": ["Enrollment"],
                "summary": "Approve a pending request and whitelist the wallet",
                "description": "Requires the reviewer's password. Concurrent decisions resolve to one winner; the rest get 409.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Approved; meta.ledger reports the chain leg outcome"},
                    "409": {"description": "Already processed"}
                }
            }
        },
        "/approvals/{id}/reject": {
            "post": {
                "tags": ["Enrollment"],
                "summary": "Reject a pending request with an optional reason",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Rejected"},
                    "409": {"description": "Already processed"}
                }
            }
        },
        "/assignments/{id}/submissions": {
            "post": {
                "tags": ["Grading"],
                "summary": "Submit work, signed with the student's custodial key",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Stored; meta.ledger reports the chain leg outcome"},
                    "401": {"description": "Wrong wallet secret"}
                }
            }
        },
        "/assignments/{id}/scores": {
            "post": {
                "tags": ["Grading"],
                "summary": "Record a score (0-100) and mirror it on chain",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Recorded"},
                    "400": {"description": "Score out of range"}
                }
            }
        },
        "/assignments/{id}/scores/{studentId}/ledger": {
            "get": {
                "tags": ["Grading"],
                "summary": "Read a score back from the score contract",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "On-chain score"},
                    "503": {"description": "Ledger node unavailable"}
                }
            }
        },
        "/wallet/key/disclose": {
            "post": {
                "tags": ["Wallet"],
                "summary": "Disclose the custodial private key, exactly once",
                "responses": {
                    "200": {"description": "Plaintext key"},
                    "401": {"description": "Wrong secret"},
                    "403": {"description": "Already disclosed"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["email", "password", "full_name", "role"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["TEACHER", "STUDENT"]},
                "initial_secret": {"type": "string", "description": "Seals the student's custodial key; required for students"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
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
