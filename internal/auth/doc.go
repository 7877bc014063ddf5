// Package auth validates bearer tokens for the provisioning API.
//
// Tokens are HS256 JWTs signed with the shared secret from
// security.jwt.secret. Each carries a role: viewers may read the audit log,
// operators may also provision devices. The role to permission mapping is
// static and needs no database lookup.
package auth
