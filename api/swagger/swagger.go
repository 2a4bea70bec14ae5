package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Planforma API",
        "description": "Weekly timetable allocation and conflict resolution for a training center",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Planner", "description": "Automatic weekly timetable generation"},
        {"name": "Sessions", "description": "Session lifecycle and conflict lookups"},
        {"name": "Resolution", "description": "Conflict detection summaries and remedies"},
        {"name": "Plans", "description": "Weekly plan lifecycle"},
        {"name": "Catalog", "description": "Trainers, rooms, equipment and groups"}
    ],
    "paths": {
        "/planner/generate": {
            "post": {
                "tags": ["Planner"],
                "summary": "Generate a weekly timetable",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GeneratePlanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Week start is not a Monday"},
                    "412": {"description": "Plan is no longer in progress"}
                }
            }
        },
        "/planner/seed-slots": {
            "post": {
                "tags": ["Planner"],
                "summary": "Seed the free candidate windows of a week",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SeedSlotsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Week already seeded"}
                }
            }
        },
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List the sessions of a plan",
                "parameters": [
                    {"name": "planId", "in": "query", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Create a session inside a weekly plan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created, possibly flagged with conflicts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get a session with its slots and equipment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Sessions"],
                "summary": "Update a session and re-run detection",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sessions"],
                "summary": "Delete a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/sessions/{id}/conflicts": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List the stored conflicts of a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resolution/resolve-all/{planId}": {
            "post": {
                "tags": ["Resolution"],
                "summary": "Resolve every conflict of a plan, hardest first",
                "parameters": [
                    {"name": "planId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Plan is locked"}
                }
            }
        },
        "/resolution/apply": {
            "post": {
                "tags": ["Resolution"],
                "summary": "Apply one chosen remedy to one conflict",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRemedyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No applicable remedy"}
                }
            }
        },
        "/resolution/conflicts/{id}/remedies": {
            "get": {
                "tags": ["Resolution"],
                "summary": "List applicable remedies for a conflict",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resolution/summary/{planId}": {
            "get": {
                "tags": ["Resolution"],
                "summary": "Summarise a plan's conflicts by type and severity",
                "parameters": [
                    {"name": "planId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans": {
            "get": {
                "tags": ["Plans"],
                "summary": "List weekly plans",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/{id}": {
            "get": {
                "tags": ["Plans"],
                "summary": "Get a weekly plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Plans"],
                "summary": "Delete an unpublished plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Published plans cannot be deleted"}
                }
            }
        },
        "/plans/{id}/validate": {
            "post": {
                "tags": ["Plans"],
                "summary": "Validate a plan once no blocking conflict remains",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Blocking conflicts remain"}
                }
            }
        },
        "/plans/{id}/publish": {
            "post": {
                "tags": ["Plans"],
                "summary": "Publish a validated plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Plan is not validated"}
                }
            }
        },
        "/trainers": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List active trainers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Catalog"],
                "summary": "Register a trainer",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTrainerRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/trainers/{id}/availability": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List a trainer's availability windows",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Catalog"],
                "summary": "Replace a trainer's availability declaration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rooms": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List active rooms",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Catalog"],
                "summary": "Register a room",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRoomRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/equipment": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List equipment pools",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Catalog"],
                "summary": "Register an equipment pool",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEquipmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List student groups",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Catalog"],
                "summary": "Register a student group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGroupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GeneratePlanRequest": {
            "type": "object",
            "properties": {
                "weekStart": {"type": "string", "example": "2026-01-05"},
                "name": {"type": "string"}
            },
            "required": ["weekStart"]
        },
        "SeedSlotsRequest": {
            "type": "object",
            "properties": {
                "weekStart": {"type": "string", "example": "2026-01-05"}
            },
            "required": ["weekStart"]
        },
        "SlotRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string", "example": "2026-01-06"},
                "weekday": {"type": "string", "example": "TUESDAY"},
                "startTime": {"type": "string", "example": "10:00"},
                "endTime": {"type": "string", "example": "12:00"}
            },
            "required": ["date", "weekday", "startTime", "endTime"]
        },
        "CreateSessionRequest": {
            "type": "object",
            "properties": {
                "planId": {"type": "string"},
                "title": {"type": "string"},
                "trainerId": {"type": "string"},
                "roomId": {"type": "string"},
                "groupId": {"type": "string"},
                "durationMinutes": {"type": "integer", "example": 120},
                "equipmentIds": {"type": "array", "items": {"type": "string"}},
                "slots": {"type": "array", "items": {"$ref": "#/definitions/SlotRequest"}}
            },
            "required": ["planId", "title"]
        },
        "ApplyRemedyRequest": {
            "type": "object",
            "properties": {
                "conflictId": {"type": "string"},
                "remedyType": {"type": "string", "example": "MOVE_TO_FREE_SLOT"},
                "remedyData": {"type": "object", "additionalProperties": {"type": "string"}}
            },
            "required": ["conflictId", "remedyType"]
        },
        "CreateTrainerRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "specialty": {"type": "string"}
            },
            "required": ["email", "fullName"]
        },
        "ReplaceAvailabilityRequest": {
            "type": "object",
            "properties": {
                "windows": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "weekday": {"type": "string"},
                            "startTime": {"type": "string"},
                            "endTime": {"type": "string"},
                            "available": {"type": "boolean"}
                        }
                    }
                }
            },
            "required": ["windows"]
        },
        "CreateRoomRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "building": {"type": "string"},
                "capacity": {"type": "integer"}
            },
            "required": ["name", "capacity"]
        },
        "CreateEquipmentRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "quantity": {"type": "integer"}
            },
            "required": ["name", "quantity"]
        },
        "CreateGroupRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "size": {"type": "integer"}
            },
            "required": ["name", "size"]
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
