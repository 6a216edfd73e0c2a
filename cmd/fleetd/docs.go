package main

// General API documentation for swaggo. Run `swag init` to generate docs.
//
// @title           fleetd API
// @version         1.0
// @description     HTTP API for orchestrating GPU-bound AI services on one host.
//
// @contact.name   fleetd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
