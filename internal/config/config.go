package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
	Server struct {
		Port      string `yaml:"port"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// LoadConfig загружает конфигурацию из файлов
func LoadConfig() *Config {
	config := &Config{}

	// 1. Основной конфиг (без секретов)
	data, err := os.ReadFile("config.yaml")
	if err != nil {
		log.Fatalf("Ошибка чтения config.yaml: %v", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Fatalf("Ошибка парсинга config.yaml: %v", err)
	}

	// 2. Секретный конфиг (пароль БД, ключ JWT); файл опционален,
	//    если секреты пришли через окружение
	if secretData, err := os.ReadFile("config.secret.yaml"); err == nil {
		var secretConfig struct {
			Database struct {
				Password string `yaml:"password"`
			} `yaml:"database"`
			Server struct {
				JWTSecret string `yaml:"jwt_secret"`
			} `yaml:"server"`
		}
		if err := yaml.Unmarshal(secretData, &secretConfig); err != nil {
			log.Fatalf("Ошибка парсинга config.secret.yaml: %v", err)
		}
		config.Database.Password = secretConfig.Database.Password
		config.Server.JWTSecret = secretConfig.Server.JWTSecret
	}

	// 3. Переменные окружения перекрывают файлы (.env подхватывает main)
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		config.Database.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.Server.JWTSecret = v
	}

	if config.Database.Password == "" {
		log.Fatal("Database password is required (config.secret.yaml или DB_PASSWORD)")
	}

	log.Println("Конфигурация успешно загружена")
	return config
}
