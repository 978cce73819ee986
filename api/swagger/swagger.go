package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Scheduler API",
        "description": "Randomized search engine for university exam timetables",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Scheduler", "description": "Timetable search, validation and exports"},
        {"name": "Authentication", "description": "Admin token issuance"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate the admin account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule/run": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Run the exam scheduler synchronously",
                "description": "An infeasible timetable is still a 200 with report.valid=false.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RunScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule/runs": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "List recent runs",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Scheduler"],
                "summary": "Queue a scheduling run for background execution",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RunScheduleRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule/runs/{id}": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Get the state and result of a run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Scheduler"],
                "summary": "Delete a stored run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/schedule/runs/{id}/export": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Export a completed run's timetable",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule/validate": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Validate an externally supplied timetable",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ScheduleParams": {
            "type": "object",
            "properties": {
                "startDate": {"type": "string", "example": "2025-06-02"},
                "endDate": {"type": "string", "example": "2025-06-13"},
                "slotsPerDay": {"type": "integer"},
                "slotTimes": {"type": "array", "items": {"type": "string"}},
                "slotMinutes": {"type": "integer"},
                "holidays": {"type": "array", "items": {"type": "string"}},
                "timezone": {"type": "string"},
                "minGapMinutes": {"type": "integer"},
                "tries": {"type": "integer"},
                "seed": {"type": "integer"},
                "workers": {"type": "integer"}
            },
            "required": ["startDate", "endDate", "slotsPerDay"]
        },
        "ColumnMapping": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "courseId": {"type": "string"},
                "hallId": {"type": "string"},
                "capacity": {"type": "string"},
                "group": {"type": "string"}
            }
        },
        "RunScheduleRequest": {
            "type": "object",
            "properties": {
                "registrationsCsv": {"type": "string"},
                "hallsCsv": {"type": "string"},
                "allowedSlotsCsv": {"type": "string"},
                "mapping": {"$ref": "#/definitions/ColumnMapping"},
                "params": {"$ref": "#/definitions/ScheduleParams"}
            },
            "required": ["registrationsCsv", "hallsCsv", "params"]
        },
        "ValidateScheduleRequest": {
            "type": "object",
            "properties": {
                "registrationsCsv": {"type": "string"},
                "hallsCsv": {"type": "string"},
                "scheduleCsv": {"type": "string"},
                "mapping": {"$ref": "#/definitions/ColumnMapping"},
                "minGapMinutes": {"type": "integer"}
            },
            "required": ["registrationsCsv", "hallsCsv", "scheduleCsv"]
        },
        "ScheduleRow": {
            "type": "object",
            "properties": {
                "courseId": {"type": "string"},
                "slotId": {"type": "integer"},
                "slotDatetime": {"type": "string"},
                "halls": {"type": "array", "items": {"type": "string"}},
                "enrolledCount": {"type": "integer"},
                "notes": {"type": "string"}
            }
        },
        "ValidationReport": {
            "type": "object",
            "properties": {
                "valid": {"type": "boolean"},
                "conflicts": {"type": "integer"},
                "unassigned": {"type": "array", "items": {"type": "string"}},
                "capacityWarnings": {"type": "array", "items": {"type": "string"}},
                "errors": {"type": "array", "items": {"type": "string"}},
                "studentClashes": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ScheduleStats": {
            "type": "object",
            "properties": {
                "seed": {"type": "integer"},
                "totalTimeMs": {"type": "integer"},
                "attempts": {"type": "integer"},
                "bestPenalty": {"type": "number"},
                "slotsUsed": {"type": "integer"},
                "cancelled": {"type": "boolean"}
            }
        },
        "ScheduleResult": {
            "type": "object",
            "properties": {
                "runId": {"type": "string"},
                "success": {"type": "boolean"},
                "schedule": {"type": "array", "items": {"$ref": "#/definitions/ScheduleRow"}},
                "report": {"$ref": "#/definitions/ValidationReport"},
                "stats": {"$ref": "#/definitions/ScheduleStats"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
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
