// Package docs provides generated OpenAPI documentation.
//
// Folio API
//
//	@title			Folio API
//	@version		1.0
//	@description	Document reconstruction API: converts PDF, DOCX and PPTX files with docling-serve and rebuilds them as page-by-page markdown with described images.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/folio
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate go tool swag init -g ../cmd/folio/serve.go -o ./swagger --parseDependency --parseInternal
