package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/reviewseed/pkg/logger"
)

// Every statement is safe to re-run against an already bootstrapped database.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		isbn VARCHAR(20) PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		year INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		full_name VARCHAR(100) NOT NULL,
		email VARCHAR(100) NOT NULL UNIQUE,
		username VARCHAR(50) NOT NULL UNIQUE,
		password TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_isbn VARCHAR(20) NOT NULL REFERENCES books(isbn) ON DELETE CASCADE,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		UNIQUE (user_id, book_isbn)
	)`,
	`CREATE TABLE IF NOT EXISTS hospitals_clinics (
		id SERIAL PRIMARY KEY,
		comm_code VARCHAR(20) NOT NULL UNIQUE,
		name TEXT NOT NULL,
		type TEXT,
		address TEXT,
		latitude DOUBLE PRECISION CHECK (latitude BETWEEN -90 AND 90),
		longitude DOUBLE PRECISION CHECK (longitude BETWEEN -180 AND 180),
		CHECK ((latitude IS NULL AND longitude IS NULL) OR (latitude IS NOT NULL AND longitude IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS hospital_clinic_reviews (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		comm_code VARCHAR(20) NOT NULL REFERENCES hospitals_clinics(comm_code) ON DELETE CASCADE,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		UNIQUE (user_id, comm_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_title ON books (title)`,
	`CREATE INDEX IF NOT EXISTS idx_books_author ON books (author)`,
	`CREATE INDEX IF NOT EXISTS idx_hospitals_clinics_name ON hospitals_clinics (name)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		isbn VARCHAR(20) PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		year INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name VARCHAR(100) NOT NULL,
		email VARCHAR(100) NOT NULL UNIQUE,
		username VARCHAR(50) NOT NULL UNIQUE,
		password TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_isbn VARCHAR(20) NOT NULL REFERENCES books(isbn) ON DELETE CASCADE,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		UNIQUE (user_id, book_isbn)
	)`,
	`CREATE TABLE IF NOT EXISTS hospitals_clinics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comm_code VARCHAR(20) NOT NULL UNIQUE,
		name TEXT NOT NULL,
		type TEXT,
		address TEXT,
		latitude REAL CHECK (latitude BETWEEN -90 AND 90),
		longitude REAL CHECK (longitude BETWEEN -180 AND 180),
		CHECK ((latitude IS NULL AND longitude IS NULL) OR (latitude IS NOT NULL AND longitude IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS hospital_clinic_reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		comm_code VARCHAR(20) NOT NULL REFERENCES hospitals_clinics(comm_code) ON DELETE CASCADE,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		UNIQUE (user_id, comm_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_title ON books (title)`,
	`CREATE INDEX IF NOT EXISTS idx_books_author ON books (author)`,
	`CREATE INDEX IF NOT EXISTS idx_hospitals_clinics_name ON hospitals_clinics (name)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		isbn VARCHAR(20) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		author VARCHAR(255) NOT NULL,
		year INT NOT NULL,
		INDEX idx_books_title (title),
		INDEX idx_books_author (author)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		full_name VARCHAR(100) NOT NULL,
		email VARCHAR(100) NOT NULL UNIQUE,
		username VARCHAR(50) NOT NULL UNIQUE,
		password TEXT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT NOT NULL,
		book_isbn VARCHAR(20) NOT NULL,
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		UNIQUE KEY uq_reviews_user_book (user_id, book_isbn),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (book_isbn) REFERENCES books(isbn) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS hospitals_clinics (
		id INT AUTO_INCREMENT PRIMARY KEY,
		comm_code VARCHAR(20) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(255),
		address VARCHAR(255),
		latitude DOUBLE CHECK (latitude BETWEEN -90 AND 90),
		longitude DOUBLE CHECK (longitude BETWEEN -180 AND 180),
		CHECK ((latitude IS NULL AND longitude IS NULL) OR (latitude IS NOT NULL AND longitude IS NOT NULL)),
		INDEX idx_hospitals_clinics_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS hospital_clinic_reviews (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT NOT NULL,
		comm_code VARCHAR(20) NOT NULL,
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		UNIQUE KEY uq_facility_reviews_user_code (user_id, comm_code),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (comm_code) REFERENCES hospitals_clinics(comm_code) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqlServerSchema = []string{
	`IF OBJECT_ID(N'books', N'U') IS NULL CREATE TABLE books (
		isbn NVARCHAR(20) PRIMARY KEY,
		title NVARCHAR(255) NOT NULL,
		author NVARCHAR(255) NOT NULL,
		year INT NOT NULL
	)`,
	`IF OBJECT_ID(N'users', N'U') IS NULL CREATE TABLE users (
		id INT IDENTITY(1,1) PRIMARY KEY,
		full_name NVARCHAR(100) NOT NULL,
		email NVARCHAR(100) NOT NULL UNIQUE,
		username NVARCHAR(50) NOT NULL UNIQUE,
		password NVARCHAR(MAX) NOT NULL
	)`,
	`IF OBJECT_ID(N'reviews', N'U') IS NULL CREATE TABLE reviews (
		id INT IDENTITY(1,1) PRIMARY KEY,
		user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		book_isbn NVARCHAR(20) NOT NULL REFERENCES books(isbn) ON DELETE CASCADE,
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment NVARCHAR(MAX),
		CONSTRAINT uq_reviews_user_book UNIQUE (user_id, book_isbn)
	)`,
	`IF OBJECT_ID(N'hospitals_clinics', N'U') IS NULL CREATE TABLE hospitals_clinics (
		id INT IDENTITY(1,1) PRIMARY KEY,
		comm_code NVARCHAR(20) NOT NULL UNIQUE,
		name NVARCHAR(255) NOT NULL,
		type NVARCHAR(255),
		address NVARCHAR(255),
		latitude FLOAT CHECK (latitude BETWEEN -90 AND 90),
		longitude FLOAT CHECK (longitude BETWEEN -180 AND 180),
		CHECK ((latitude IS NULL AND longitude IS NULL) OR (latitude IS NOT NULL AND longitude IS NOT NULL))
	)`,
	`IF OBJECT_ID(N'hospital_clinic_reviews', N'U') IS NULL CREATE TABLE hospital_clinic_reviews (
		id INT IDENTITY(1,1) PRIMARY KEY,
		user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		comm_code NVARCHAR(20) NOT NULL REFERENCES hospitals_clinics(comm_code) ON DELETE CASCADE,
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment NVARCHAR(MAX),
		CONSTRAINT uq_facility_reviews_user_code UNIQUE (user_id, comm_code)
	)`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_books_title') CREATE INDEX idx_books_title ON books (title)`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_books_author') CREATE INDEX idx_books_author ON books (author)`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_hospitals_clinics_name') CREATE INDEX idx_hospitals_clinics_name ON hospitals_clinics (name)`,
}

// SchemaStatements returns the bootstrap DDL of a dialect in execution order.
func SchemaStatements(d Dialect) ([]string, error) {
	switch d {
	case Postgres:
		return postgresSchema, nil
	case SQLite:
		return sqliteSchema, nil
	case MySQL:
		return mysqlSchema, nil
	case SQLServer:
		return sqlServerSchema, nil
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrSchema, d)
	}
}

// Bootstrap creates the destination tables and indexes if they are missing.
func Bootstrap(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, err := SchemaStatements(d)
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: statement %d (%s): %w", ErrSchema, i+1, firstLine(stmt), err)
		}
	}
	logger.Info("schema bootstrap complete", "dialect", string(d), "statements", len(stmts))
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}

// BootstrapMongo creates the unique indexes that stand in for the relational
// constraints. Catalog collections are keyed by _id, which is always unique.
func BootstrapMongo(ctx context.Context, db *mongo.Database) error {
	indexes := map[string]bson.D{
		"reviews":                 {{Key: "user_id", Value: 1}, {Key: "book_isbn", Value: 1}},
		"hospital_clinic_reviews": {{Key: "user_id", Value: 1}, {Key: "comm_code", Value: 1}},
	}
	for coll, keys := range indexes {
		model := mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
		if _, err := db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("%w: index on %s: %w", ErrSchema, coll, err)
		}
	}
	logger.Info("mongo index bootstrap complete", "database", db.Name())
	return nil
}
