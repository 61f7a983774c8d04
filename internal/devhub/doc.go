// Package devhub is a development hub speaking the client's wire protocol,
// used for local development and end-to-end tests of the realtime client.
//
// The package implements:
//   - Hub: tracks connected clients and their task, project, team and user groups
//   - Handler: upgrades connections and routes hub method invocations
//   - Service: server-originated pushes such as notifications and ad hoc messages
//
// Identity is taken from the bearer token, formatted "userID" or
// "userID:userName". There is no real authentication.
package devhub
