// Package docs provides generated OpenAPI documentation.
//
// Storia API
//
//	@title			Storia API
//	@version		1.0
//	@description	Ambient soundscape pipeline API for ingesting books, classifying pages, and managing synthesized audio.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/asp2131/storia
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/storia/serve.go -o ./swagger --parseDependency --parseInternal
