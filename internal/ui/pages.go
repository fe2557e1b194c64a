package ui

import (
	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

func pageShell(title string, body ...Node) Node {
	return HTML(
		Lang("en"),
		Head(
			Meta(Charset("utf-8")),
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			TitleEl(Text(title+" | Expense Track")),
			Link(Rel("stylesheet"), Href("https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css")),
		),
		Body(
			Main(Class("container"), Group(body)),
		),
	)
}

func appPage(title, username string, body ...Node) Node {
	return pageShell(title,
		Nav(
			Ul(Li(Strong(Text("Expense Track")))),
			Ul(
				Li(Text("Signed in as "+username)),
				Li(A(Href("/logout"), Text("Log out"))),
			),
		),
		H1(Text(title)),
		Group(body),
	)
}

func loginPage(errMsg string) Node {
	content := []Node{
		H1(Text("Log in")),
		Form(
			Method("post"),
			Action("/login"),
			Label(Text("Username")),
			Input(Type("text"), Name("username"), Required()),
			Label(Text("Password")),
			Input(Type("password"), Name("password"), Required()),
			Button(Type("submit"), Text("Log in")),
		),
		P(A(Href("/register"), Text("Need an account? Register"))),
	}
	if errMsg != "" {
		content = append([]Node{P(Class("error"), Text(errMsg))}, content...)
	}
	return pageShell("Log in", content...)
}

func registerPage(errMsg string) Node {
	content := []Node{
		H1(Text("Register")),
		Form(
			Method("post"),
			Action("/register"),
			Label(Text("Username")),
			Input(Type("text"), Name("username"), Required()),
			Label(Text("Email")),
			Input(Type("email"), Name("email"), Required()),
			Label(Text("Password")),
			Input(Type("password"), Name("password"), Required()),
			Label(Text("Confirm password")),
			Input(Type("password"), Name("confirm_password"), Required()),
			Button(Type("submit"), Text("Register")),
		),
		P(A(Href("/login"), Text("Already registered? Log in"))),
	}
	if errMsg != "" {
		content = append([]Node{P(Class("error"), Text(errMsg))}, content...)
	}
	return pageShell("Register", content...)
}

func errorPage(title, message string) Node {
	return pageShell(title,
		H1(Text(title)),
		P(Text(message)),
		P(A(Href("/"), Text("Back to overview"))),
	)
}
