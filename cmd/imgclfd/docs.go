package main

// General API documentation for swaggo. The served description lives in
// internal/httpapi/swagger.go and is mounted with -tags swagger.
//
// @title           imgclf API
// @version         1.0
// @description     Image classification over HTTP: upload an image, get the predicted class.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
