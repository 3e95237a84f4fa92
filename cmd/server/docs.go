// Package main Plan Page API
//
//	@title						Plan Page API
//	@version					1.0
//	@description				Subscription management, checkout and billing webhooks.
//
//	@host						localhost:8080
//	@BasePath					/api
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					Billing
//	@tag.description			Plan catalog and payment provider webhooks
//
//	@tag.name					Checkout
//	@tag.description			Hosted checkout sessions
//
//	@tag.name					Profile
//	@tag.description			The signed-in user's subscription
package main
