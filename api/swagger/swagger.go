package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Screen-time Compliance API",
        "description": "Classroom screen-time policies, daily usage evaluation and score ledgers.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {
            "name": "Classes",
            "description": "Class groups"
        },
        {
            "name": "Policy",
            "description": "Daily limits and allow/block lists"
        },
        {
            "name": "Students",
            "description": "Enrollment"
        },
        {
            "name": "Usage",
            "description": "Usage ingest and evaluation"
        },
        {
            "name": "Scores",
            "description": "Ledgers, history and milestones"
        },
        {
            "name": "Dashboard",
            "description": "Teacher class summary"
        },
        {
            "name": "Reports",
            "description": "CSV and PDF exports"
        },
        {
            "name": "Ops",
            "description": "Health and metrics"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": [
                    "Ops"
                ],
                "summary": "Liveness check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "tags": [
                    "Ops"
                ],
                "summary": "Readiness check (pings the database)",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "Database unreachable"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": [
                    "Ops"
                ],
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/v1/classes": {
            "get": {
                "tags": [
                    "Classes"
                ],
                "summary": "List classes",
                "parameters": [
                    {
                        "name": "teacherId",
                        "in": "query",
                        "type": "string",
                        "description": "Filter by teacher"
                    },
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string",
                        "description": "Search keyword"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "description": "Page"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "description": "Page size"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Classes"
                ],
                "summary": "Create class",
                "description": "Policy fields left out take the configured defaults.",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateClassRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Name already used by the teacher",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "INVALID_CONFIG",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/classes/{id}": {
            "get": {
                "tags": [
                    "Classes"
                ],
                "summary": "Get class detail",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Classes"
                ],
                "summary": "Update class",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateClassRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Classes"
                ],
                "summary": "Delete class",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/classes/{id}/policy": {
            "get": {
                "tags": [
                    "Policy"
                ],
                "summary": "Resolve class policy",
                "description": "Rule set in force on the given date, including weekend doubling.",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    },
                    {
                        "name": "date",
                        "in": "query",
                        "type": "string",
                        "description": "Date (YYYY-MM-DD). Defaults to today"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Policy"
                ],
                "summary": "Replace class policy",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdatePolicyRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "INVALID_CONFIG",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/classes/{id}/apps": {
            "get": {
                "tags": [
                    "Policy"
                ],
                "summary": "List allowed and blocked apps",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Policy"
                ],
                "summary": "Allow or block an app",
                "description": "An app already on the other list is moved.",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AddAppRuleRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Already on the requested list",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/classes/{id}/apps/{appId}": {
            "delete": {
                "tags": [
                    "Policy"
                ],
                "summary": "Remove an app rule",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    },
                    {
                        "name": "appId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "App rule ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Removed"
                    },
                    "404": {
                        "description": "NOT_FOUND",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/classes/{id}/dashboard": {
            "get": {
                "tags": [
                    "Dashboard"
                ],
                "summary": "Class compliance dashboard",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/classes/{id}/report": {
            "get": {
                "tags": [
                    "Reports"
                ],
                "summary": "Class standings report",
                "produces": [
                    "text/csv",
                    "application/pdf"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Class ID"
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv",
                            "pdf"
                        ],
                        "default": "csv"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Report file",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS or FEATURE_DISABLED",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students": {
            "get": {
                "tags": [
                    "Students"
                ],
                "summary": "List students",
                "parameters": [
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string",
                        "description": "Search by name or email"
                    },
                    {
                        "name": "classId",
                        "in": "query",
                        "type": "string",
                        "description": "Filter by class"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "description": "Page"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "description": "Page size"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Students"
                ],
                "summary": "Enroll student",
                "description": "Opens a score ledger at the starting balance.",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/EnrollStudentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Email already registered",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}": {
            "get": {
                "tags": [
                    "Students"
                ],
                "summary": "Get student detail",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_STUDENT",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/class": {
            "put": {
                "tags": [
                    "Students"
                ],
                "summary": "Move student to a class",
                "description": "A null class_id unassigns the student.",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AssignClassRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_STUDENT or UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/usage": {
            "post": {
                "tags": [
                    "Usage"
                ],
                "summary": "Submit daily usage",
                "description": "Evaluates one day against the class policy and updates the ledger. Re-submitting a date replaces it.",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmitUsageRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/EvaluationEnvelope"
                        }
                    },
                    "400": {
                        "description": "INVALID_USAGE_EVENT",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_STUDENT or UNKNOWN_CLASS",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "CONCURRENT_UPDATE",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/usage/batch": {
            "post": {
                "tags": [
                    "Usage"
                ],
                "summary": "Submit usage for many students",
                "description": "Events are evaluated asynchronously.",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BatchUsageRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "INVALID_USAGE_EVENT",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "QUEUE_FULL",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/ledger": {
            "get": {
                "tags": [
                    "Scores"
                ],
                "summary": "Get score ledger",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_STUDENT",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/ledger/entries": {
            "get": {
                "tags": [
                    "Scores"
                ],
                "summary": "Ledger history, newest first",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "description": "From date (YYYY-MM-DD)"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "description": "To date (YYYY-MM-DD)"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "description": "Maximum entries (default 31, max 366)"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/{id}/milestones": {
            "get": {
                "tags": [
                    "Scores"
                ],
                "summary": "Milestones and level",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "UNKNOWN_STUDENT",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "CreateClassRequest": {
            "type": "object",
            "properties": {
                "teacher_id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "school_year": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "daily_limit_minutes": {
                    "type": "integer",
                    "minimum": 1,
                    "maximum": 1440
                },
                "weekend_mode": {
                    "type": "boolean"
                },
                "strict_mode": {
                    "type": "boolean"
                }
            },
            "required": [
                "teacher_id",
                "name"
            ]
        },
        "UpdateClassRequest": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "school_year": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                }
            },
            "required": [
                "name"
            ]
        },
        "UpdatePolicyRequest": {
            "type": "object",
            "properties": {
                "daily_limit_minutes": {
                    "type": "integer",
                    "minimum": 1,
                    "maximum": 1440
                },
                "weekend_mode": {
                    "type": "boolean"
                },
                "strict_mode": {
                    "type": "boolean"
                }
            },
            "required": [
                "daily_limit_minutes"
            ]
        },
        "AddAppRuleRequest": {
            "type": "object",
            "properties": {
                "app_name": {
                    "type": "string"
                },
                "app_type": {
                    "type": "string",
                    "enum": [
                        "allowed",
                        "blocked"
                    ]
                }
            },
            "required": [
                "app_name",
                "app_type"
            ]
        },
        "EnrollStudentRequest": {
            "type": "object",
            "properties": {
                "full_name": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "class_id": {
                    "type": "string"
                }
            },
            "required": [
                "full_name"
            ]
        },
        "AssignClassRequest": {
            "type": "object",
            "properties": {
                "class_id": {
                    "type": "string"
                }
            }
        },
        "SubmitUsageRequest": {
            "type": "object",
            "properties": {
                "date": {
                    "type": "string",
                    "format": "date"
                },
                "total_minutes": {
                    "type": "integer",
                    "minimum": 0
                },
                "per_app_minutes": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "integer"
                    }
                }
            },
            "required": [
                "date",
                "total_minutes"
            ]
        },
        "BatchUsageItem": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date"
                },
                "total_minutes": {
                    "type": "integer"
                },
                "per_app_minutes": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "integer"
                    }
                }
            },
            "required": [
                "student_id",
                "date",
                "total_minutes"
            ]
        },
        "BatchUsageRequest": {
            "type": "object",
            "properties": {
                "events": {
                    "type": "array",
                    "maxItems": 500,
                    "items": {
                        "$ref": "#/definitions/BatchUsageItem"
                    }
                }
            },
            "required": [
                "events"
            ]
        },
        "ScoreLedger": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "points": {
                    "type": "number"
                },
                "current_streak_days": {
                    "type": "integer"
                },
                "longest_streak_days": {
                    "type": "integer"
                },
                "last_evaluated_date": {
                    "type": "string",
                    "format": "date"
                },
                "updated_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "Milestone": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "enum": [
                        "started",
                        "week_streak",
                        "month_streak"
                    ]
                },
                "unlocked": {
                    "type": "boolean"
                }
            }
        },
        "Level": {
            "type": "object",
            "properties": {
                "level": {
                    "type": "integer"
                },
                "progress_to_next": {
                    "type": "number"
                },
                "next_point": {
                    "type": "integer"
                },
                "needs_attention": {
                    "type": "boolean"
                }
            }
        },
        "ClassPolicy": {
            "type": "object",
            "properties": {
                "class_id": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date"
                },
                "daily_limit_minutes": {
                    "type": "integer"
                },
                "effective_limit_minutes": {
                    "type": "integer"
                },
                "weekend_mode": {
                    "type": "boolean"
                },
                "weekend_doubled": {
                    "type": "boolean"
                },
                "strict_mode": {
                    "type": "boolean"
                },
                "allowed_apps": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "blocked_apps": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "Evaluation": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date"
                },
                "verdict": {
                    "type": "string",
                    "enum": [
                        "COMPLIANT",
                        "VIOLATION"
                    ]
                },
                "reason": {
                    "type": "string",
                    "enum": [
                        "none",
                        "over_limit",
                        "blocked_app_used"
                    ]
                },
                "blocked_apps": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "outcome": {
                    "type": "string",
                    "enum": [
                        "applied",
                        "reapplied",
                        "backdated",
                        "unchanged"
                    ]
                },
                "ledger": {
                    "$ref": "#/definitions/ScoreLedger"
                },
                "milestones": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/Milestone"
                    }
                },
                "level": {
                    "$ref": "#/definitions/Level"
                },
                "policy": {
                    "$ref": "#/definitions/ClassPolicy"
                }
            }
        },
        "EvaluationEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "$ref": "#/definitions/Evaluation"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
