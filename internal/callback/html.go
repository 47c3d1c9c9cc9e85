package callback

// successHTML is shown in the browser after the redirect was captured; the
// CLI finishes the exchange in the background.
const successHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Login complete</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
               display: flex; justify-content: center; align-items: center; min-height: 100vh;
               margin: 0; background: #f3f4f6; }
        .card { text-align: center; background: white; padding: 2.5rem; border-radius: 12px;
                box-shadow: 0 10px 25px rgba(0,0,0,0.1); max-width: 420px; }
        h1 { color: #1f2937; font-size: 1.5rem; }
        p { color: #6b7280; }
    </style>
</head>
<body>
    <div class="card">
        <h1>Login complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
    <script>setTimeout(function () { window.close(); }, 3000);</script>
</body>
</html>`

// errorHTML is shown when the redirect carried an error or no code. The
// single %s verb receives the error code.
const errorHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Login failed</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
               display: flex; justify-content: center; align-items: center; min-height: 100vh;
               margin: 0; background: #f3f4f6; }
        .card { text-align: center; background: white; padding: 2.5rem; border-radius: 12px;
                box-shadow: 0 10px 25px rgba(0,0,0,0.1); max-width: 420px; }
        h1 { color: #b91c1c; font-size: 1.5rem; }
        p { color: #6b7280; }
        code { background: #f9fafb; padding: 0.2rem 0.4rem; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="card">
        <h1>Login failed</h1>
        <p><code>%s</code></p>
        <p>Return to the terminal and try again.</p>
    </div>
</body>
</html>`
