package handlers

import "github.com/go-playground/validator/v10"

// один экземпляр на пакет, потокобезопасен
var validate = validator.New()
