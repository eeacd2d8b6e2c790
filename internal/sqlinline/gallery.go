package sqlinline

const QCreateGeneratedImagesTable = `--sql 0bd53451-eb15-43d1-839e-75f69f27bcd5
create table if not exists generated_images (
    id              uuid primary key,
    job_id          text not null,
    image_url       text not null,
    local_cache_ref text not null default '',
    prompt          text not null,
    parameters      jsonb not null default '{}'::jsonb,
    status          text not null,
    favorite        boolean not null default false,
    created_at      timestamptz not null default now()
);
`

const QCreateGeneratedImagesIndex = `--sql 4e34a912-20b0-4e55-9d1c-87d9e77eb7df
create index if not exists generated_images_created_at_idx
    on generated_images (created_at desc, id);
`

// QInsertGeneratedImages appends a whole batch in one statement; $1 is a
// JSON array of records.
const QInsertGeneratedImages = `--sql 73e7d1ab-3767-4a35-8aed-39abc7866595
insert into generated_images (
    id, job_id, image_url, local_cache_ref, prompt, parameters, status, favorite, created_at
)
select
    r.id,
    r.job_id,
    r.image_url,
    coalesce(r.local_cache_ref, ''),
    r.prompt,
    coalesce(r.parameters, '{}'::jsonb),
    r.status,
    coalesce(r.favorite, false),
    coalesce(r.created_at, now())
from jsonb_to_recordset($1::jsonb) as r(
    id uuid,
    job_id text,
    image_url text,
    local_cache_ref text,
    prompt text,
    parameters jsonb,
    status text,
    favorite boolean,
    created_at timestamptz
)
on conflict (id) do nothing;
`

const QListGeneratedImages = `--sql 61e413a2-9bd7-47f4-acd7-72649f9b2f71
select id::text, job_id, image_url, local_cache_ref, prompt, parameters, status, favorite, created_at
from generated_images
where ($1::bool = false or favorite)
order by created_at desc, id
limit $2::int;
`

const QSetGeneratedImageFavorite = `--sql 4c34b3ca-ca98-4a77-8251-a08432bf436c
update generated_images
set favorite = $2::bool
where id = $1::uuid
returning id::text, job_id, image_url, local_cache_ref, prompt, parameters, status, favorite, created_at;
`
