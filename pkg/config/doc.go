// Package config loads EduGate configuration from EDUGATE_* environment variables
// and an optional YAML policy file.
//
// Server settings:
//
//	EDUGATE_ENV="development"      # development or production
//	EDUGATE_PORT="8080"
//	EDUGATE_HEALTH_PORT="9090"
//
// Storage settings:
//
//	EDUGATE_STORAGE_TYPE="mongo"   # memory or mongo
//	EDUGATE_MONGO_URI="mongodb://localhost:27017"
//	EDUGATE_POSTGRES_URL="postgres://localhost/edugate_audit?sslmode=disable"
//	EDUGATE_REDIS_URL="redis://localhost:6379"
//	EDUGATE_S3_BUCKET="edugate-audit-archive"
//
// Policy file (EDUGATE_POLICY_FILE):
//
//	rateLimits:
//	  api:      {limit: 100, window: 1m}
//	  auth:     {limit: 10, window: 15m}
//	  mutation: {limit: 30, window: 1m}
//	roleMultipliers:
//	  superadmin: 5
//	  admin: 3
//	  superagent: 2
//	csrf:
//	  rotateOnValidate: false
//	  autoIssue: true
//	  tokenTTL: 1h
//	  sameSite: lax
package config
