// Package environment names the deployment stage a process runs in. The
// logger package derives its level and output format from it.
package environment
